package router

import (
	"fmt"
	"strconv"
	"strings"
)

// Substitute expands the parameter substitution grammar of spec.md §4.4
// inside a routing template string, against the caller's tool arguments:
//
//	{name}          -> args["name"], stringified; error if absent (required)
//	{name|default}  -> args["name"] if present and non-empty, else default
//	{name[i]}       -> the i'th element of args["name"] (must be an array)
//	{name?a:b}      -> a if args["name"] is present/truthy, else b
//
// A '{' with no closing '}' is copied verbatim, so a template with no
// matching braces round-trips unchanged. A malformed placeholder inside
// matching braces (bad ternary, non-numeric or out-of-range index, index
// into a non-array) is an error; {name[i]} with name absent yields "".
func Substitute(template string, args map[string]any) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open == -1 {
			out.WriteString(template[i:])
			break
		}
		out.WriteString(template[i : i+open])
		start := i + open
		closeIdx := strings.IndexByte(template[start:], '}')
		if closeIdx == -1 {
			out.WriteString(template[start:])
			break
		}
		expr := template[start+1 : start+closeIdx]
		val, err := evalExpr(expr, args)
		if err != nil {
			return "", fmt.Errorf("router: substitute %q: %w", expr, err)
		}
		out.WriteString(val)
		i = start + closeIdx + 1
	}
	return out.String(), nil
}

func evalExpr(expr string, args map[string]any) (string, error) {
	switch {
	case strings.Contains(expr, "?") && strings.Contains(expr, ":"):
		return evalTernary(expr, args)
	case strings.Contains(expr, "|"):
		return evalDefault(expr, args)
	case strings.Contains(expr, "[") && strings.HasSuffix(expr, "]"):
		return evalIndex(expr, args)
	default:
		v, ok := args[expr]
		if !ok {
			return "", fmt.Errorf("missing required value %q", expr)
		}
		return stringify(v), nil
	}
}

func evalTernary(expr string, args map[string]any) (string, error) {
	q := strings.IndexByte(expr, '?')
	c := strings.IndexByte(expr, ':')
	if q < 0 || c < q {
		return "", fmt.Errorf("malformed ternary %q", expr)
	}
	name := expr[:q]
	whenTrue := expr[q+1 : c]
	whenFalse := expr[c+1:]
	if truthy(args[name]) {
		return whenTrue, nil
	}
	return whenFalse, nil
}

func evalDefault(expr string, args map[string]any) (string, error) {
	parts := strings.SplitN(expr, "|", 2)
	name, def := parts[0], parts[1]
	v, ok := args[name]
	if !ok || stringify(v) == "" {
		return def, nil
	}
	return stringify(v), nil
}

func evalIndex(expr string, args map[string]any) (string, error) {
	open := strings.IndexByte(expr, '[')
	name := expr[:open]
	idxStr := expr[open+1 : len(expr)-1]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return "", fmt.Errorf("non-numeric index %q", idxStr)
	}
	v, ok := args[name]
	if !ok {
		return "", nil
	}
	arr, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("%q is not an array", name)
	}
	if idx < 0 || idx >= len(arr) {
		return "", fmt.Errorf("index %d out of range for %q (len %d)", idx, name, len(arr))
	}
	return stringify(arr[idx]), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// SubstituteMap applies Substitute to every string value in m (used for
// header maps).
func SubstituteMap(m map[string]string, args map[string]any) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		sv, err := Substitute(v, args)
		if err != nil {
			return nil, err
		}
		out[k] = sv
	}
	return out, nil
}
