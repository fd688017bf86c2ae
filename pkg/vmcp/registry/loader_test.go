package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv map[string]string

func (f fakeEnv) LookupEnv(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func writeYAML(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const echoToolYAML = `
tools:
  - name: echo
    description: "echoes ${GREETING}"
    input_schema:
      type: object
      properties:
        msg:
          type: string
      required: [msg]
    routing:
      type: subprocess
      subprocess:
        command: "echo"
        args: ["${GREETING}"]
`

func TestLoadStaticDir_ResolvesEnvVars(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeYAML(t, dir, "echo.yaml", echoToolYAML)

	src, diags := LoadStaticDir(dir, fakeEnv{"GREETING": "hello"})
	assert.Empty(t, diags)
	require.Len(t, src.Tools, 1)
	assert.Equal(t, "echoes hello", src.Tools[0].Description)
	assert.Equal(t, "hello", src.Tools[0].Routing.Subprocess.Args[0])
}

func TestLoadStaticDir_MissingEnvVarIsDiagnostic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeYAML(t, dir, "echo.yaml", echoToolYAML)

	src, diags := LoadStaticDir(dir, fakeEnv{})
	assert.Len(t, diags, 1)
	assert.Empty(t, src.Tools)
}

func TestLoadStaticDir_IgnoresNonYAMLFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeYAML(t, dir, "echo.yml", echoToolYAML)
	writeYAML(t, dir, "README.md", "not a tool file")

	src, diags := LoadStaticDir(dir, fakeEnv{"GREETING": "hi"})
	assert.Empty(t, diags)
	assert.Len(t, src.Tools, 1)
}

func TestLoadStaticDir_BadYAMLIsDiagnosticNotFatal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeYAML(t, dir, "broken.yaml", "tools: [this is not valid: yaml: at all:")
	writeYAML(t, dir, "ok.yaml", echoToolYAML)

	src, diags := LoadStaticDir(dir, fakeEnv{"GREETING": "hi"})
	assert.Len(t, diags, 1)
	assert.Len(t, src.Tools, 1)
}
