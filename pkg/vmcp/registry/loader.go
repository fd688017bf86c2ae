package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// EnvReader abstracts environment variable lookup for ${VAR} resolution in
// static tool YAML, so tests can inject a fake environment.
type EnvReader interface {
	LookupEnv(key string) (string, bool)
}

type osEnvReader struct{}

func (osEnvReader) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// OSEnv is the default EnvReader, backed by os.LookupEnv.
var OSEnv EnvReader = osEnvReader{}

// toolFile is the on-disk YAML shape for one or more static tool
// definitions.
type toolFile struct {
	Tools []toolYAML `yaml:"tools"`
}

type toolYAML struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	InputSchema map[string]any    `yaml:"input_schema"`
	Hidden      bool              `yaml:"hidden"`
	Annotations map[string]any    `yaml:"annotations"`
	Routing     vmcp.RoutingConfig `yaml:"routing"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadStaticDir reads every *.yaml/*.yml file under dir (non-recursive, to
// match the "configured directories" surface of §6) and returns a Source
// containing all validly-parsed tools, plus diagnostics for any file or
// tool that failed to load. A load/parse failure for one file does not
// abort loading the rest.
func LoadStaticDir(dir string, env EnvReader) (Source, []error) {
	if env == nil {
		env = OSEnv
	}
	var diagnostics []error
	src := Source{Static: true}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return src, []error{fmt.Errorf("registry: read static dir %q: %w", dir, err)}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Errorf("registry: read %q: %w", path, err))
			continue
		}
		tools, errs := parseToolFile(raw, env)
		diagnostics = append(diagnostics, wrapFileErrors(path, errs)...)
		src.Tools = append(src.Tools, tools...)
	}
	return src, diagnostics
}

func wrapFileErrors(path string, errs []error) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = fmt.Errorf("%s: %w", path, e)
	}
	return out
}

// parseToolFile decodes one YAML document into zero or more tools,
// resolving ${VAR} references in the fields resolveToolEnv covers and
// skipping (with a diagnostic) any tool whose env vars don't resolve.
func parseToolFile(raw []byte, env EnvReader) ([]vmcp.Tool, []error) {
	var file toolFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, []error{fmt.Errorf("parse yaml: %w", err)}
	}

	var tools []vmcp.Tool
	var diagnostics []error
	for _, ty := range file.Tools {
		resolved, err := resolveToolEnv(ty, env)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Errorf("tool %q: %w", ty.Name, err))
			continue
		}
		schemaBytes, err := yaml.Marshal(resolved.InputSchema)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Errorf("tool %q: marshal input_schema: %w", ty.Name, err))
			continue
		}
		jsonSchema, err := yamlToJSON(schemaBytes)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Errorf("tool %q: convert input_schema: %w", ty.Name, err))
			continue
		}
		tools = append(tools, vmcp.Tool{
			Name:        resolved.Name,
			Description: resolved.Description,
			InputSchema: jsonSchema,
			Hidden:      resolved.Hidden,
			Annotations: resolved.Annotations,
			Routing:     resolved.Routing,
		})
	}
	return tools, diagnostics
}

// resolveToolEnv substitutes ${VAR} references in the tool description,
// the subprocess command, args and env, and the HTTP URL and header
// values, failing loudly if a referenced variable is unset — this is the
// "referenced environment variables resolve" load-time check of spec.md
// §4.3. Other routing fields (the HTTP body and every other routing
// variant's settings) are left as written, ${VAR} included.
func resolveToolEnv(ty toolYAML, env EnvReader) (toolYAML, error) {
	var missing []string
	resolve := func(s string) string {
		return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
			name := envVarPattern.FindStringSubmatch(m)[1]
			v, ok := env.LookupEnv(name)
			if !ok {
				missing = append(missing, name)
				return m
			}
			return v
		})
	}

	ty.Description = resolve(ty.Description)
	if ty.Routing.Subprocess != nil {
		ty.Routing.Subprocess.Command = resolve(ty.Routing.Subprocess.Command)
		for i, a := range ty.Routing.Subprocess.Args {
			ty.Routing.Subprocess.Args[i] = resolve(a)
		}
		for k, v := range ty.Routing.Subprocess.Env {
			ty.Routing.Subprocess.Env[k] = resolve(v)
		}
	}
	if ty.Routing.HTTP != nil {
		ty.Routing.HTTP.URL = resolve(ty.Routing.HTTP.URL)
		for k, v := range ty.Routing.HTTP.Headers {
			ty.Routing.HTTP.Headers[k] = resolve(v)
		}
	}

	if len(missing) > 0 {
		return ty, fmt.Errorf("unresolved environment variables: %s", strings.Join(missing, ", "))
	}
	return ty, nil
}

// yamlToJSON converts YAML-decoded, re-marshaled bytes to canonical JSON so
// InputSchema is always valid JSON Schema regardless of the source format.
func yamlToJSON(yamlBytes []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(yamlBytes, &v); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAMLValue(v))
}

// normalizeYAMLValue converts map[string]interface{} (yaml.v3's default)
// recursively so encoding/json can marshal nested maps/slices produced by
// the YAML decoder.
func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalizeYAMLValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeYAMLValue(vv)
		}
		return out
	default:
		return val
	}
}

// logInvalid logs each diagnostic without aborting the load, matching
// spec.md §4.3's "Invalid tools are skipped with an error diagnostic".
func logInvalid(diagnostics []error) {
	for _, d := range diagnostics {
		logger.Warnw("registry: skipping invalid tool", "error", d)
	}
}
