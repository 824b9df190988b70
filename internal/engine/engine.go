// Package engine is the transform engine: it holds the published snapshot
// of compiled specs and the active profile, selects the profile entry for a
// message and runs the matched spec.
//
// Transform is lock-free: it loads the current snapshot once and works on
// it. Loads and reloads compile a complete new snapshot under a mutex and
// publish it with a single atomic store, so a reader sees either the old
// or the new state, never a mix.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/msgxform/internal/budget"
	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/profile"
	"github.com/vyrodovalexey/msgxform/internal/spec"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

var engineTracer = otel.Tracer("msgxform/engine")

// ErrNilRegistry is returned by New without an expression registry.
var ErrNilRegistry = errors.New("expression registry is nil")

// snapshot is the immutable published state. specs holds every spec under
// its "id@version" key and under its bare id, the bare id pointing at the
// spec loaded last.
type snapshot struct {
	specs     map[string]*spec.TransformSpec
	profile   *profile.Profile
	errorMode ErrorMode
}

func (s *snapshot) lookup() profile.Specs {
	return profile.Specs(s.specs)
}

// versioned returns the specs stored under their "id@version" key.
func (s *snapshot) versioned() []*spec.TransformSpec {
	out := make([]*spec.TransformSpec, 0, len(s.specs))
	for key, ts := range s.specs {
		if key == ts.Key() {
			out = append(out, ts)
		}
	}
	return out
}

func putSpec(specs map[string]*spec.TransformSpec, s *spec.TransformSpec) {
	specs[s.ID] = s
	specs[s.Key()] = s
}

// Engine transforms messages according to the loaded specs and profile. It
// is safe for concurrent use.
type Engine struct {
	registry         *expr.Registry
	specCompiler     *spec.Compiler
	profileCompiler  *profile.Compiler
	matcher          *profile.Matcher
	evaluator        *budget.Evaluator
	logger           observability.Logger
	metrics          *Metrics
	notifier         notifier
	denyStatus       map[xformerr.EvalKind]int
	schemaValidation SchemaValidation
	errorMode        ErrorMode

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// New creates an engine with an empty snapshot.
func New(registry *expr.Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}

	e := &Engine{
		registry:   registry,
		evaluator:  budget.NewEvaluator(budget.Default()),
		logger:     observability.NopLogger(),
		metrics:    GetMetrics(),
		denyStatus: DefaultDenyStatus(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.notifier.logger = e.logger
	e.specCompiler = spec.NewCompiler(registry, spec.WithLogger(e.logger))
	e.profileCompiler = profile.NewCompiler(registry, profile.WithLogger(e.logger))
	e.matcher = profile.NewMatcher(e.logger)
	e.current.Store(&snapshot{
		specs:     map[string]*spec.TransformSpec{},
		errorMode: e.errorMode,
	})
	return e, nil
}

// RegisterEngine adds or replaces an expression engine. Specs compiled
// afterwards can use it.
func (e *Engine) RegisterEngine(engine expr.Engine) {
	e.registry.Register(engine)
}

// LoadSpec compiles the spec at path and publishes it under its bare id and
// its id@version, replacing a spec with the same id@version. The bare id
// always points at the spec loaded last. The active profile keeps the specs
// it resolved when it was loaded.
func (e *Engine) LoadSpec(ctx context.Context, path string) (*spec.TransformSpec, error) {
	_, span := engineTracer.Start(ctx, "engine.load_spec",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("spec.source", path)),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	s, err := e.compileSpec(path)
	if err != nil {
		e.reloadFailed(span, start, err)
		return nil, err
	}

	cur := e.current.Load()
	next := &snapshot{
		specs:     cloneSpecs(cur.specs),
		profile:   cur.profile,
		errorMode: cur.errorMode,
	}
	if _, replaced := next.specs[s.Key()]; replaced {
		e.logger.Info("spec replaced",
			observability.String("spec_id", s.ID),
			observability.String("spec_version", s.Version),
		)
	}
	putSpec(next.specs, s)
	e.publish(next, start)
	e.notifier.specLoaded(SpecLoadedEvent{SpecID: s.ID, SpecVersion: s.Version, Source: path})
	return s, nil
}

// LoadProfile compiles the profile at path against the loaded specs and
// makes it active.
func (e *Engine) LoadProfile(ctx context.Context, path string) (*profile.Profile, error) {
	_, span := engineTracer.Start(ctx, "engine.load_profile",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("profile.source", path)),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	cur := e.current.Load()
	p, err := e.profileCompiler.CompileFile(path, cur.lookup())
	if err != nil {
		e.reloadFailed(span, start, err)
		return nil, err
	}

	e.publish(&snapshot{specs: cur.specs, profile: p, errorMode: cur.errorMode}, start)
	e.logger.Info("profile loaded",
		observability.String("profile_id", p.ID),
		observability.String("profile_version", p.Version),
		observability.Int("entries", len(p.Entries)),
	)
	return p, nil
}

// Reload compiles every spec in specPaths and the profile at profilePath
// into a fresh snapshot and publishes it in one step. An empty profilePath
// publishes no profile. On any failure the previous snapshot stays active
// and the error is returned.
func (e *Engine) Reload(ctx context.Context, specPaths []string, profilePath string) error {
	_, span := engineTracer.Start(ctx, "engine.reload",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("reload.spec_count", len(specPaths)),
			attribute.String("reload.profile", profilePath),
		),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	specs := make(map[string]*spec.TransformSpec, len(specPaths))
	loaded := make([]SpecLoadedEvent, 0, len(specPaths))
	for _, path := range specPaths {
		s, err := e.compileSpec(path)
		if err != nil {
			e.reloadFailed(span, start, err)
			return err
		}
		if prev, dup := specs[s.Key()]; dup {
			e.logger.Warn("duplicate spec id and version in reload, later file wins",
				observability.String("spec", s.Key()),
				observability.String("replaced_source", prev.Source),
				observability.String("source", path),
			)
		}
		putSpec(specs, s)
		loaded = append(loaded, SpecLoadedEvent{SpecID: s.ID, SpecVersion: s.Version, Source: path})
	}

	var p *profile.Profile
	if profilePath != "" {
		var err error
		if p, err = e.profileCompiler.CompileFile(profilePath, profile.Specs(specs)); err != nil {
			e.reloadFailed(span, start, err)
			return err
		}
	}

	e.publish(&snapshot{specs: specs, profile: p, errorMode: e.current.Load().errorMode}, start)
	for _, ev := range loaded {
		e.notifier.specLoaded(ev)
	}

	fields := []observability.Field{
		observability.Int("specs", e.SpecCount()),
		observability.Duration("duration", time.Since(start)),
	}
	if p != nil {
		fields = append(fields, observability.String("profile_id", p.ID))
	}
	e.logger.Info("engine reloaded", fields...)
	return nil
}

// ReloadDir reloads from every .yaml and .yml file directly inside dir, in
// lexical order.
func (e *Engine) ReloadDir(ctx context.Context, dir, profilePath string) error {
	paths, err := SpecFiles(dir, profilePath)
	if err != nil {
		return err
	}
	return e.Reload(ctx, paths, profilePath)
}

// SpecFiles lists the spec files of dir: regular .yaml and .yml files,
// non-recursive, lexically sorted. exclude is skipped so a profile may live
// in the same directory.
func SpecFiles(dir, exclude string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec directory %s: %w", dir, err)
	}
	excluded := ""
	if exclude != "" {
		excluded = filepath.Clean(exclude)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if path == excluded {
			continue
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths, nil
}

// SetErrorMode publishes a new error mode.
func (e *Engine) SetErrorMode(mode ErrorMode) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	e.current.Store(&snapshot{specs: cur.specs, profile: cur.profile, errorMode: mode})
}

// ErrorMode returns the active error mode.
func (e *Engine) ErrorMode() ErrorMode {
	return e.current.Load().errorMode
}

// SpecCount returns the number of distinct id@version specs loaded.
func (e *Engine) SpecCount() int {
	return len(e.current.Load().versioned())
}

// ActiveProfile returns the active profile, or nil.
func (e *Engine) ActiveProfile() *profile.Profile {
	return e.current.Load().profile
}

// Specs returns the loaded specs ordered by id, then version.
func (e *Engine) Specs() []*spec.TransformSpec {
	out := e.current.Load().versioned()
	slices.SortFunc(out, func(a, b *spec.TransformSpec) int {
		if c := strings.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return profile.CompareVersions(a.Version, b.Version)
	})
	return out
}

// Spec returns the spec stored under "id@version", or under a bare id the
// spec with that id loaded last.
func (e *Engine) Spec(key string) (*spec.TransformSpec, bool) {
	s, ok := e.current.Load().specs[key]
	return s, ok
}

func (e *Engine) compileSpec(path string) (*spec.TransformSpec, error) {
	s, err := e.specCompiler.CompileFile(path)
	if err != nil {
		e.logger.Warn("spec rejected",
			observability.String("source", path),
			observability.Error(err),
		)
		e.notifier.specRejected(SpecRejectedEvent{Source: path, Err: err})
		return nil, err
	}
	return s, nil
}

// publish stores next; callers hold e.mu.
func (e *Engine) publish(next *snapshot, start time.Time) {
	e.current.Store(next)
	e.metrics.recordReload(true, time.Since(start).Seconds(), len(next.versioned()))
}

func (e *Engine) reloadFailed(span trace.Span, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.recordReload(false, time.Since(start).Seconds(), 0)
	e.logger.Error("load failed, keeping previous snapshot", observability.Error(err))
}

func cloneSpecs(in map[string]*spec.TransformSpec) map[string]*spec.TransformSpec {
	out := make(map[string]*spec.TransformSpec, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
