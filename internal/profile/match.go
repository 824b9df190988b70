package profile

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/vyrodovalexey/msgxform/internal/expr"
	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// Query describes the message being matched.
type Query struct {
	Direction   message.Direction
	Path        string
	Method      string
	ContentType message.MediaType
	Status      int
	HasStatus   bool
	// Body is the decoded original body; BodyOK is false when the body is
	// absent or not JSON, in which case when predicates do not match.
	Body    any
	BodyOK  bool
	Context *message.TransformContext
}

// Matcher selects profile entries for messages.
type Matcher struct {
	logger observability.Logger
}

// NewMatcher creates a matcher. A nil logger disables logging.
func NewMatcher(logger observability.Logger) *Matcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Matcher{logger: logger}
}

// Candidates returns the matching entries, best first: highest
// specificity, then highest constraint count, then earliest declaration.
func (m *Matcher) Candidates(ctx context.Context, p *Profile, q Query) []*Entry {
	if p == nil {
		return nil
	}
	var out []*Entry
	for _, e := range p.Entries {
		if m.matches(ctx, e, q) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, compareEntries)
	return out
}

// Best returns the best matching entry, or nil.
func (m *Matcher) Best(ctx context.Context, p *Profile, q Query) *Entry {
	candidates := m.Candidates(ctx, p, q)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func compareEntries(a, b *Entry) int {
	if c := cmp.Compare(b.Specificity(), a.Specificity()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.ConstraintCount(), a.ConstraintCount()); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// matches requires every configured constraint to pass. A constraint whose
// message value is absent fails.
func (m *Matcher) matches(ctx context.Context, e *Entry, q Query) bool {
	if e.Direction != q.Direction {
		return false
	}
	if !e.MatchPath(q.Path) {
		return false
	}
	if e.Method != "" && !strings.EqualFold(e.Method, q.Method) {
		return false
	}
	if e.ContentType != "" && (q.ContentType == "" || !e.ContentType.Matches(q.ContentType)) {
		return false
	}
	if !e.Status.IsZero() && (!q.HasStatus || !e.Status.Matches(q.Status)) {
		return false
	}
	if e.When != nil {
		return m.evalWhen(ctx, e, q)
	}
	return true
}

func (m *Matcher) evalWhen(ctx context.Context, e *Entry, q Query) bool {
	if !q.BodyOK {
		m.logger.Debug("entry with when predicate skipped, body is absent or not JSON",
			observability.String("path_pattern", e.PathPattern),
			observability.String("spec_id", e.Spec.ID),
		)
		return false
	}
	result, err := e.When.Evaluate(ctx, q.Body, q.Context)
	if err != nil {
		m.logger.Warn("when predicate failed, treating entry as non-matching",
			observability.String("path_pattern", e.PathPattern),
			observability.String("spec_id", e.Spec.ID),
			observability.Error(err),
		)
		return false
	}
	return expr.Truthy(result)
}
