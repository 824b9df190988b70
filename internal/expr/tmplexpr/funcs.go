package tmplexpr

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/msgxform/internal/message"
)

func defaultFuncs() template.FuncMap {
	funcs := make(template.FuncMap)
	addJSONFuncs(funcs)
	addStringFuncs(funcs)
	addConversionFuncs(funcs)
	addCollectionFuncs(funcs)
	addConditionalFuncs(funcs)
	return funcs
}

// toJSON renders a value for embedding in a JSON template. Failures render
// as null so the output stays parseable.
func toJSON(v any) string {
	b, err := message.EncodeJSON(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func addJSONFuncs(funcs template.FuncMap) {
	funcs["json"] = toJSON
	funcs["quote"] = func(s any) string {
		return toJSON(fmt.Sprint(s))
	}
}

func addStringFuncs(funcs template.FuncMap) {
	funcs["upper"] = strings.ToUpper
	funcs["lower"] = strings.ToLower
	// Casers are stateful, so one is built per call.
	funcs["title"] = func(s string) string { return cases.Title(language.English).String(s) }
	funcs["trim"] = strings.TrimSpace
	funcs["trimPrefix"] = func(prefix, s string) string { return strings.TrimPrefix(s, prefix) }
	funcs["trimSuffix"] = func(suffix, s string) string { return strings.TrimSuffix(s, suffix) }
	funcs["replace"] = func(old, repl, s string) string { return strings.ReplaceAll(s, old, repl) }
	funcs["split"] = func(sep, s string) []string { return strings.Split(s, sep) }
	funcs["join"] = joinAny
	funcs["contains"] = func(substr, s string) bool { return strings.Contains(s, substr) }
	funcs["hasPrefix"] = func(prefix, s string) bool { return strings.HasPrefix(s, prefix) }
	funcs["hasSuffix"] = func(suffix, s string) bool { return strings.HasSuffix(s, suffix) }
}

// joinAny joins []string or []any elements; it takes the separator first so
// it composes in pipelines.
func joinAny(sep string, v any) string {
	switch list := v.(type) {
	case []string:
		return strings.Join(list, sep)
	case []any:
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprint(v)
	}
}

func addConversionFuncs(funcs template.FuncMap) {
	funcs["toString"] = func(v any) string {
		if s, ok := v.(string); ok {
			return s
		}
		return toJSON(v)
	}
	funcs["toInt"] = toInt
	funcs["toFloat"] = toFloat
}

func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint64:
		return int(val)
	case float64:
		return int(val)
	case bool:
		if val {
			return 1
		}
		return 0
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
		return int(toFloat(val))
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}

func addCollectionFuncs(funcs template.FuncMap) {
	funcs["get"] = func(m map[string]any, key string) any { return m[key] }
	funcs["set"] = func(m map[string]any, key string, value any) map[string]any {
		out := message.DeepCopyMap(m)
		if out == nil {
			out = make(map[string]any)
		}
		out[key] = value
		return out
	}
	funcs["keys"] = func(m map[string]any) []string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return keys
	}
	funcs["first"] = func(list []any) any {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	funcs["last"] = func(list []any) any {
		if len(list) == 0 {
			return nil
		}
		return list[len(list)-1]
	}
	funcs["size"] = func(v any) int {
		switch val := v.(type) {
		case string:
			return len(val)
		case []any:
			return len(val)
		case map[string]any:
			return len(val)
		default:
			return 0
		}
	}
	funcs["dict"] = func(pairs ...any) map[string]any {
		out := make(map[string]any, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			if key, ok := pairs[i].(string); ok {
				out[key] = pairs[i+1]
			}
		}
		return out
	}
	funcs["list"] = func(items ...any) []any { return items }
}

func addConditionalFuncs(funcs template.FuncMap) {
	funcs["default"] = func(fallback, v any) any {
		if isBlank(v) {
			return fallback
		}
		return v
	}
	funcs["coalesce"] = func(vals ...any) any {
		for _, v := range vals {
			if !isBlank(v) {
				return v
			}
		}
		return nil
	}
	funcs["ternary"] = func(cond bool, yes, no any) any {
		if cond {
			return yes
		}
		return no
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
