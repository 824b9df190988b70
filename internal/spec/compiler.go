package spec

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/status"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

// Recognized keys per block. Anything else is rejected so typos such as
// headers.request.add fail at load time.
var (
	rootKeys      = []string{"id", "version", "description", "lang", "input", "output", "transform", "forward", "reverse", "headers", "status", "url", "mappers", "sensitive"}
	transformKeys = []string{"lang", "expr", "apply"}
	schemaKeys    = []string{"schema"}
	headerKeys    = []string{"add", "remove", "rename"}
	statusKeys    = []string{"set", "when"}
	urlKeys       = []string{"path", "query", "method"}
	urlPathKeys   = []string{"expr"}
	urlQueryKeys  = []string{"add", "remove"}
	urlMethodKeys = []string{"set", "when"}
	mapperKeys    = []string{"lang", "expr"}
	dynamicKeys   = []string{"expr"}
)

// HTTPMethods lists the methods accepted by url.method.set.
var HTTPMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Compiler turns spec documents into TransformSpecs. It is safe for
// concurrent use.
type Compiler struct {
	registry *expr.Registry
	logger   observability.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the compiler logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// NewCompiler creates a compiler resolving languages through registry.
func NewCompiler(registry *expr.Registry, opts ...Option) *Compiler {
	c := &Compiler{
		registry: registry,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the expression registry used by the compiler.
func (c *Compiler) Registry() *expr.Registry {
	return c.registry
}

// CompileFile reads and compiles the spec at path.
func (c *Compiler) CompileFile(path string) (*TransformSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xformerr.WrapLoadError(xformerr.SpecParse, "failed to read spec file", "", path, err)
	}
	return c.Compile(data, path)
}

// Compile compiles one spec document. source labels errors and is stored
// on the result.
func (c *Compiler) Compile(data []byte, source string) (*TransformSpec, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, xformerr.WrapLoadError(xformerr.SpecParse, "failed to parse YAML", "", source, err)
	}
	if root == nil {
		return nil, xformerr.NewLoadError(xformerr.SpecParse, "spec document is empty", "", source)
	}

	p := &parser{registry: c.registry, source: source}
	s, err := p.parse(root)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("spec compiled",
		observability.String("spec_id", s.ID),
		observability.String("spec_version", s.Version),
		observability.String("lang", s.Lang),
		observability.String("source", source),
	)
	return s, nil
}

// parser carries the per-document context used in error messages.
type parser struct {
	registry *expr.Registry
	source   string
	id       string
	engine   expr.Engine
}

func (p *parser) parseErr(format string, args ...any) error {
	return xformerr.NewLoadError(xformerr.SpecParse, fmt.Sprintf(format, args...), p.id, p.source)
}

func (p *parser) parse(root map[string]any) (*TransformSpec, error) {
	if id, ok := root["id"].(string); ok {
		p.id = id
	}

	id, err := p.requireString(root, "id", "spec")
	if err != nil {
		return nil, err
	}
	if strings.Contains(id, "@") {
		return nil, p.parseErr("spec id %q must not contain '@'", id)
	}
	version, err := p.requireString(root, "version", "spec")
	if err != nil {
		return nil, err
	}
	if err := p.rejectUnknown(root, rootKeys, "spec root"); err != nil {
		return nil, err
	}
	description, err := p.optionalString(root, "description", "spec")
	if err != nil {
		return nil, err
	}

	s := &TransformSpec{
		ID:          id,
		Version:     version,
		Description: description,
		Source:      p.source,
	}

	transformBlock, err := p.optionalMap(root, "transform", "spec")
	if err != nil {
		return nil, err
	}
	forwardBlock, err := p.optionalMap(root, "forward", "spec")
	if err != nil {
		return nil, err
	}
	reverseBlock, err := p.optionalMap(root, "reverse", "spec")
	if err != nil {
		return nil, err
	}

	if s.Lang, err = p.resolveLang(root, transformBlock, forwardBlock); err != nil {
		return nil, err
	}
	if p.engine, err = p.resolveEngine(s.Lang); err != nil {
		return nil, err
	}

	switch {
	case transformBlock != nil && (forwardBlock != nil || reverseBlock != nil):
		return nil, p.parseErr("spec must not combine 'transform' with 'forward'/'reverse'")
	case transformBlock != nil:
		if s.Expr, err = p.compileBlock(transformBlock, "transform"); err != nil {
			return nil, err
		}
	case forwardBlock != nil && reverseBlock != nil:
		if s.Forward, err = p.compileBlock(forwardBlock, "forward"); err != nil {
			return nil, err
		}
		if s.Reverse, err = p.compileBlock(reverseBlock, "reverse"); err != nil {
			return nil, err
		}
	default:
		return nil, p.parseErr("spec must have either a 'transform' block or both 'forward' and 'reverse' blocks")
	}

	if s.InputSchema, err = p.parseSchema(root, "input"); err != nil {
		return nil, err
	}
	if s.OutputSchema, err = p.parseSchema(root, "output"); err != nil {
		return nil, err
	}
	if s.Headers, err = p.parseHeaders(root); err != nil {
		return nil, err
	}
	if s.Status, err = p.parseStatus(root); err != nil {
		return nil, err
	}
	if s.URL, err = p.parseURL(root); err != nil {
		return nil, err
	}

	mappers, err := p.parseMappers(root)
	if err != nil {
		return nil, err
	}
	if s.Apply, err = p.parseApply(transformBlock, s.Expr, mappers); err != nil {
		return nil, err
	}
	if s.Sensitive, err = p.parseSensitive(root); err != nil {
		return nil, err
	}

	return s, nil
}

func (p *parser) resolveLang(root, transformBlock, forwardBlock map[string]any) (string, error) {
	if lang, err := p.optionalString(root, "lang", "spec"); err != nil || lang != "" {
		return lang, err
	}
	for _, candidate := range []struct {
		block map[string]any
		name  string
	}{{transformBlock, "transform"}, {forwardBlock, "forward"}} {
		if candidate.block == nil {
			continue
		}
		if lang, err := p.optionalString(candidate.block, "lang", candidate.name); err != nil || lang != "" {
			return lang, err
		}
	}
	return expr.DefaultLang, nil
}

func (p *parser) resolveEngine(lang string) (expr.Engine, error) {
	engine, err := p.registry.Resolve(lang)
	if err != nil {
		return nil, xformerr.WrapLoadError(xformerr.ExpressionCompile,
			fmt.Sprintf("unknown expression engine %q", lang), p.id, p.source, err)
	}
	return engine, nil
}

func (p *parser) compile(engine expr.Engine, source, where string) (expr.Compiled, error) {
	compiled, err := engine.Compile(source)
	if err != nil {
		return nil, xformerr.WrapLoadError(xformerr.ExpressionCompile,
			fmt.Sprintf("failed to compile %s expression", where), p.id, p.source, err)
	}
	return compiled, nil
}

func (p *parser) compileBlock(block map[string]any, name string) (expr.Compiled, error) {
	if err := p.rejectUnknown(block, transformKeys, name); err != nil {
		return nil, err
	}
	if _, ok := block["apply"]; ok && name != "transform" {
		return nil, p.parseErr("'apply' is only supported in the 'transform' block")
	}
	source, err := p.requireString(block, "expr", name)
	if err != nil {
		return nil, err
	}
	return p.compile(p.engine, source, name)
}

func (p *parser) parseSchema(root map[string]any, name string) (*Schema, error) {
	block, err := p.optionalMap(root, name, "spec")
	if err != nil || block == nil {
		return nil, err
	}
	if err := p.rejectUnknown(block, schemaKeys, name); err != nil {
		return nil, err
	}
	doc, ok := block["schema"]
	if !ok || doc == nil {
		return nil, p.parseErr("'%s' block requires a 'schema' document", name)
	}
	schema, err := CompileSchema(p.id+"-"+name, doc)
	if err != nil {
		return nil, xformerr.WrapLoadError(xformerr.SchemaValidation,
			fmt.Sprintf("invalid JSON Schema in '%s.schema'", name), p.id, p.source, err)
	}
	return schema, nil
}

func (p *parser) parseHeaders(root map[string]any) (*HeaderSpec, error) {
	block, err := p.optionalMap(root, "headers", "spec")
	if err != nil || block == nil {
		return nil, err
	}
	if err := p.rejectUnknown(block, headerKeys, "headers"); err != nil {
		return nil, err
	}

	h := &HeaderSpec{}
	h.Add, h.AddDynamic, err = p.parseAdditions(block, "headers.add", strings.ToLower)
	if err != nil {
		return nil, err
	}

	remove, err := p.optionalStrings(block, "remove", "headers")
	if err != nil {
		return nil, err
	}
	for _, pattern := range remove {
		h.Remove = append(h.Remove, NewGlob(strings.ToLower(pattern)))
	}

	rename, err := p.optionalMap(block, "rename", "headers")
	if err != nil {
		return nil, err
	}
	for _, from := range sortedKeys(rename) {
		to, ok := rename[from].(string)
		if !ok || strings.TrimSpace(to) == "" {
			return nil, p.parseErr("headers.rename.%s must be a non-empty header name", from)
		}
		h.Rename = append(h.Rename, Rename{From: strings.ToLower(from), To: strings.ToLower(to)})
	}

	if h.IsEmpty() {
		return nil, nil
	}
	return h, nil
}

// parseAdditions reads an add map whose values are either static strings or
// {expr: ...} objects. Keys are normalized with name and visited in sorted
// order so evaluation order is deterministic.
func (p *parser) parseAdditions(
	block map[string]any,
	where string,
	name func(string) string,
) ([]NamedValue, []NamedExpr, error) {
	dot := strings.LastIndex(where, ".")
	add, err := p.optionalMap(block, where[dot+1:], where[:dot])
	if err != nil || add == nil {
		return nil, nil, err
	}

	var static []NamedValue
	var dynamic []NamedExpr
	for _, k := range sortedKeys(add) {
		switch v := add[k].(type) {
		case string:
			static = append(static, NamedValue{Name: name(k), Value: v})
		case map[string]any:
			if err := p.rejectUnknown(v, dynamicKeys, where+"."+k); err != nil {
				return nil, nil, err
			}
			source, err := p.requireString(v, "expr", where+"."+k)
			if err != nil {
				return nil, nil, err
			}
			compiled, err := p.compile(p.engine, source, where+"."+k)
			if err != nil {
				return nil, nil, err
			}
			dynamic = append(dynamic, NamedExpr{Name: name(k), Expr: compiled})
		default:
			return nil, nil, p.parseErr("%s.%s must be a string or an {expr} object", where, k)
		}
	}
	return static, dynamic, nil
}

func (p *parser) parseStatus(root map[string]any) (*StatusSpec, error) {
	block, err := p.optionalMap(root, "status", "spec")
	if err != nil || block == nil {
		return nil, err
	}
	if err := p.rejectUnknown(block, statusKeys, "status"); err != nil {
		return nil, err
	}

	raw, ok := block["set"]
	if !ok || raw == nil {
		return nil, p.parseErr("status block requires a 'set' field with the target HTTP status code")
	}
	code, ok := raw.(int)
	if !ok {
		return nil, p.parseErr("status.set must be an integer, got %v", raw)
	}
	if code < status.MinCode || code > status.MaxCode {
		return nil, p.parseErr("invalid status code %d, must be in range %d-%d", code, status.MinCode, status.MaxCode)
	}

	s := &StatusSpec{Set: code}
	if s.When, err = p.optionalExpr(block, "when", "status"); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *parser) parseURL(root map[string]any) (*URLSpec, error) {
	block, err := p.optionalMap(root, "url", "spec")
	if err != nil || block == nil {
		return nil, err
	}
	if err := p.rejectUnknown(block, urlKeys, "url"); err != nil {
		return nil, err
	}

	u := &URLSpec{}

	pathBlock, err := p.optionalMap(block, "path", "url")
	if err != nil {
		return nil, err
	}
	if pathBlock != nil {
		if err := p.rejectUnknown(pathBlock, urlPathKeys, "url.path"); err != nil {
			return nil, err
		}
		if u.Path, err = p.optionalExpr(pathBlock, "expr", "url.path"); err != nil {
			return nil, err
		}
	}

	queryBlock, err := p.optionalMap(block, "query", "url")
	if err != nil {
		return nil, err
	}
	if queryBlock != nil {
		if err := p.rejectUnknown(queryBlock, urlQueryKeys, "url.query"); err != nil {
			return nil, err
		}
		remove, err := p.optionalStrings(queryBlock, "remove", "url.query")
		if err != nil {
			return nil, err
		}
		for _, pattern := range remove {
			u.QueryRemove = append(u.QueryRemove, NewGlob(pattern))
		}
		identity := func(s string) string { return s }
		if u.QueryAdd, u.QueryAddDynamic, err = p.parseAdditions(queryBlock, "url.query.add", identity); err != nil {
			return nil, err
		}
	}

	methodBlock, err := p.optionalMap(block, "method", "url")
	if err != nil {
		return nil, err
	}
	if methodBlock != nil {
		if err := p.rejectUnknown(methodBlock, urlMethodKeys, "url.method"); err != nil {
			return nil, err
		}
		method, err := p.optionalString(methodBlock, "set", "url.method")
		if err != nil {
			return nil, err
		}
		if method != "" {
			u.Method = strings.ToUpper(method)
			if !slices.Contains(HTTPMethods, u.Method) {
				return nil, p.parseErr("invalid HTTP method %q in url.method.set, must be one of %s",
					method, strings.Join(HTTPMethods, ", "))
			}
		}
		if u.MethodWhen, err = p.optionalExpr(methodBlock, "when", "url.method"); err != nil {
			return nil, err
		}
		if u.MethodWhen != nil && u.Method == "" {
			return nil, p.parseErr("url.method.when requires url.method.set")
		}
	}

	if u.Path == nil && !u.HasQueryOps() && u.Method == "" {
		return nil, nil
	}
	return u, nil
}

func (p *parser) parseMappers(root map[string]any) (map[string]expr.Compiled, error) {
	block, err := p.optionalMap(root, "mappers", "spec")
	if err != nil || block == nil {
		return nil, err
	}

	mappers := make(map[string]expr.Compiled, len(block))
	for _, name := range sortedKeys(block) {
		where := "mappers." + name
		def, ok := block[name].(map[string]any)
		if !ok {
			return nil, p.parseErr("%s must be a mapping with an 'expr' field", where)
		}
		if err := p.rejectUnknown(def, mapperKeys, where); err != nil {
			return nil, err
		}
		source, err := p.requireString(def, "expr", where)
		if err != nil {
			return nil, err
		}

		engine := p.engine
		lang, err := p.optionalString(def, "lang", where)
		if err != nil {
			return nil, err
		}
		if lang != "" {
			if engine, err = p.resolveEngine(lang); err != nil {
				return nil, err
			}
		}

		compiled, err := p.compile(engine, source, where)
		if err != nil {
			return nil, err
		}
		mappers[name] = compiled
	}
	return mappers, nil
}

func (p *parser) parseApply(
	transformBlock map[string]any,
	main expr.Compiled,
	mappers map[string]expr.Compiled,
) ([]ApplyStep, error) {
	if transformBlock == nil {
		return nil, nil
	}
	raw, ok := transformBlock["apply"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, p.parseErr("'apply' directive must be a YAML list")
	}

	steps := make([]ApplyStep, 0, len(items))
	mainCount := 0
	seen := make(map[string]bool)
	for i, item := range items {
		switch v := item.(type) {
		case string:
			if v != "expr" {
				return nil, p.parseErr("invalid apply step %d: expected 'expr' or {mapperRef: <id>}, got %q", i, v)
			}
			mainCount++
			steps = append(steps, ApplyStep{Expr: main})
		case map[string]any:
			ref, ok := v["mapperRef"].(string)
			if !ok || len(v) != 1 {
				return nil, p.parseErr("invalid apply step %d: expected {mapperRef: <id>}", i)
			}
			compiled, known := mappers[ref]
			if !known {
				return nil, p.parseErr("unknown mapper id %q in apply directive, available mappers: [%s]",
					ref, strings.Join(sortedKeys(mappers), ", "))
			}
			if seen[ref] {
				return nil, p.parseErr("mapper %q appears more than once in apply", ref)
			}
			seen[ref] = true
			steps = append(steps, ApplyStep{Mapper: ref, Expr: compiled})
		default:
			return nil, p.parseErr("invalid apply step %d: expected 'expr' or {mapperRef: <id>}", i)
		}
	}

	if mainCount != 1 {
		return nil, p.parseErr("'apply' directive must include 'expr' exactly once, found %d", mainCount)
	}
	return steps, nil
}

func (p *parser) parseSensitive(root map[string]any) ([]SensitivePath, error) {
	raw, ok := root["sensitive"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, p.parseErr("'sensitive' must be a YAML list of JSON path expressions")
	}

	paths := make([]SensitivePath, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, xformerr.NewLoadError(xformerr.SensitivePathSyntax,
				fmt.Sprintf("sensitive path entry must be a string, got %v", item), p.id, p.source)
		}
		path, err := ParseSensitivePath(s)
		if err != nil {
			return nil, xformerr.WrapLoadError(xformerr.SensitivePathSyntax, "invalid sensitive path", p.id, p.source, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *parser) optionalExpr(block map[string]any, key, where string) (expr.Compiled, error) {
	source, err := p.optionalString(block, key, where)
	if err != nil || source == "" {
		return nil, err
	}
	return p.compile(p.engine, source, where+"."+key)
}

func (p *parser) requireString(block map[string]any, key, where string) (string, error) {
	s, ok := block[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", p.parseErr("missing or invalid required field '%s' in %s", key, where)
	}
	return s, nil
}

func (p *parser) optionalString(block map[string]any, key, where string) (string, error) {
	raw, ok := block[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", p.parseErr("field '%s' in %s must be a string", key, where)
	}
	return s, nil
}

func (p *parser) optionalStrings(block map[string]any, key, where string) ([]string, error) {
	raw, ok := block[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, p.parseErr("field '%s' in %s must be a list of strings", key, where)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, p.parseErr("field '%s' in %s must be a list of strings", key, where)
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *parser) optionalMap(block map[string]any, key, where string) (map[string]any, error) {
	raw, ok := block[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, p.parseErr("field '%s' in %s must be a mapping", key, where)
	}
	return m, nil
}

func (p *parser) rejectUnknown(block map[string]any, known []string, where string) error {
	var unknown []string
	for key := range block {
		if !slices.Contains(known, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return p.parseErr("unknown key(s) in '%s': [%s], recognized keys are: [%s]",
		where, strings.Join(unknown, ", "), strings.Join(known, ", "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
