package profile

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/status"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

var (
	rootKeys  = []string{"profile", "version", "description", "transforms"}
	entryKeys = []string{"spec", "direction", "match"}
	matchKeys = []string{"path", "method", "content-type", "status", "when", "lang"}
)

// Specs is the spec lookup used for resolution, keyed by "id@version" and
// optionally by bare id.
type Specs map[string]*spec.TransformSpec

// Compiler turns profile documents into Profiles.
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

// NewCompiler creates a profile compiler. registry compiles match.when
// predicates.
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

// CompileFile reads and compiles the profile at path.
func (c *Compiler) CompileFile(path string, specs Specs) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xformerr.WrapLoadError(xformerr.ProfileResolve, "failed to read profile file", "", path, err)
	}
	return c.Compile(data, path, specs)
}

// Compile compiles one profile document against specs.
func (c *Compiler) Compile(data []byte, source string, specs Specs) (*Profile, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, xformerr.WrapLoadError(xformerr.ProfileResolve, "failed to parse profile YAML", "", source, err)
	}
	if root == nil {
		return nil, xformerr.NewLoadError(xformerr.ProfileResolve, "profile document is empty", "", source)
	}

	fail := func(format string, args ...any) error {
		return xformerr.NewLoadError(xformerr.ProfileResolve, fmt.Sprintf(format, args...), "", source)
	}

	id, ok := nonBlank(root["profile"])
	if !ok {
		return nil, fail("profile is missing required field 'profile'")
	}
	version, ok := nonBlank(root["version"])
	if !ok {
		return nil, fail("profile %q is missing required field 'version'", id)
	}
	if unknown := unknownKeys(root, rootKeys); len(unknown) > 0 {
		return nil, fail("profile %q: unknown key(s) %v", id, unknown)
	}
	description, _ := root["description"].(string)

	items, ok := root["transforms"].([]any)
	if !ok || len(items) == 0 {
		return nil, fail("profile %q must contain a non-empty 'transforms' list", id)
	}

	p := &Profile{
		ID:          id,
		Version:     version,
		Description: description,
		Source:      source,
		Entries:     make([]*Entry, 0, len(items)),
	}
	ec := entryCompiler{registry: c.registry, specs: specs, profileID: id, source: source}
	for i, item := range items {
		entry, err := ec.compile(i, item)
		if err != nil {
			return nil, err
		}
		p.Entries = append(p.Entries, entry)
	}

	c.logger.Debug("profile compiled",
		observability.String("profile_id", p.ID),
		observability.String("profile_version", p.Version),
		observability.Int("entries", len(p.Entries)),
	)
	return p, nil
}

type entryCompiler struct {
	registry  *expr.Registry
	specs     Specs
	profileID string
	source    string
}

func (ec *entryCompiler) fail(index int, cause error, format string, args ...any) error {
	msg := fmt.Sprintf("profile %q entry[%d]: %s", ec.profileID, index, fmt.Sprintf(format, args...))
	if cause != nil {
		return xformerr.WrapLoadError(xformerr.ProfileResolve, msg, "", ec.source, cause)
	}
	return xformerr.NewLoadError(xformerr.ProfileResolve, msg, "", ec.source)
}

func (ec *entryCompiler) compile(index int, item any) (*Entry, error) {
	node, ok := item.(map[string]any)
	if !ok {
		return nil, ec.fail(index, nil, "entry must be a mapping")
	}
	if unknown := unknownKeys(node, entryKeys); len(unknown) > 0 {
		return nil, ec.fail(index, nil, "unknown key(s) %v", unknown)
	}

	ref, ok := nonBlank(node["spec"])
	if !ok {
		return nil, ec.fail(index, nil, "missing required field 'spec'")
	}
	resolved := ec.resolve(ref)
	if resolved == nil {
		return nil, ec.fail(index, nil, "spec reference %q not found", ref)
	}

	dirText, ok := nonBlank(node["direction"])
	if !ok {
		return nil, ec.fail(index, nil, "missing required field 'direction'")
	}
	dir, err := message.ParseDirection(dirText)
	if err != nil {
		return nil, ec.fail(index, err, "invalid direction %q, must be 'request' or 'response'", dirText)
	}

	match, ok := node["match"].(map[string]any)
	if !ok {
		return nil, ec.fail(index, nil, "'match' block is required")
	}
	if unknown := unknownKeys(match, matchKeys); len(unknown) > 0 {
		return nil, ec.fail(index, nil, "unknown match key(s) %v", unknown)
	}
	path, ok := nonBlank(match["path"])
	if !ok {
		return nil, ec.fail(index, nil, "match block missing required field 'path'")
	}

	e := &Entry{
		Index:       index,
		SpecRef:     ref,
		Spec:        resolved,
		Direction:   dir,
		PathPattern: path,
		segments:    splitPath(path),
	}

	if raw, present := match["method"]; present && raw != nil {
		method, ok := nonBlank(raw)
		if !ok {
			return nil, ec.fail(index, nil, "match.method must be a non-empty string")
		}
		e.Method = strings.ToUpper(method)
	}
	if raw, present := match["content-type"]; present && raw != nil {
		ct, ok := nonBlank(raw)
		if !ok {
			return nil, ec.fail(index, nil, "match.content-type must be a non-empty string")
		}
		e.ContentType = message.MediaType(ct)
	}

	if raw, present := match["status"]; present {
		if dir == message.Request {
			return nil, ec.fail(index, nil, "match.status is only valid on response entries")
		}
		pattern, err := status.Parse(raw)
		if err != nil {
			return nil, ec.fail(index, err, "invalid match.status %v", raw)
		}
		e.Status = pattern
	}

	if raw, present := match["when"]; present && raw != nil {
		source, ok := nonBlank(raw)
		if !ok {
			return nil, ec.fail(index, nil, "match.when must be a non-empty expression")
		}
		lang := expr.DefaultLang
		if l, ok := nonBlank(match["lang"]); ok {
			lang = l
		}
		engine, err := ec.registry.Resolve(lang)
		if err != nil {
			return nil, ec.fail(index, err, "unknown match.lang %q", lang)
		}
		if e.When, err = engine.Compile(source); err != nil {
			return nil, ec.fail(index, err, "failed to compile match.when")
		}
	}

	return e, nil
}

// resolve looks a reference up by exact key first; a bare id then resolves
// to its highest version.
func (ec *entryCompiler) resolve(ref string) *spec.TransformSpec {
	if s, ok := ec.specs[ref]; ok {
		return s
	}
	if strings.Contains(ref, "@") {
		return nil
	}

	prefix := ref + "@"
	keys := make([]string, 0, len(ec.specs))
	for key := range ec.specs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	var best *spec.TransformSpec
	bestVersion := ""
	for _, key := range keys {
		version := strings.TrimPrefix(key, prefix)
		if best == nil || CompareVersions(version, bestVersion) > 0 {
			best, bestVersion = ec.specs[key], version
		}
	}
	return best
}

func nonBlank(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func unknownKeys(m map[string]any, known []string) []string {
	var unknown []string
	for key := range m {
		if !slices.Contains(known, key) {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	return unknown
}
