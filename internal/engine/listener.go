package engine

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/msgxform/internal/message"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// TransformStartedEvent is emitted when a matched spec starts evaluating.
type TransformStartedEvent struct {
	SpecID      string
	SpecVersion string
	Direction   message.Direction
}

// TransformCompletedEvent is emitted after a successful transform.
type TransformCompletedEvent struct {
	SpecID      string
	SpecVersion string
	Direction   message.Direction
	Duration    time.Duration
}

// TransformFailedEvent is emitted after an evaluation-phase failure,
// regardless of the error mode.
type TransformFailedEvent struct {
	SpecID      string
	SpecVersion string
	Direction   message.Direction
	Duration    time.Duration
	Err         error
}

// ProfileMatchedEvent is emitted when a profile entry is selected.
type ProfileMatchedEvent struct {
	ProfileID   string
	SpecID      string
	SpecVersion string
	Path        string
	Specificity int
}

// SpecLoadedEvent is emitted for every spec published by a load or reload.
type SpecLoadedEvent struct {
	SpecID      string
	SpecVersion string
	Source      string
}

// SpecRejectedEvent is emitted when a spec fails to compile.
type SpecRejectedEvent struct {
	Source string
	Err    error
}

// Listener receives engine telemetry. Implementations must be safe for
// concurrent use; a panicking listener is logged and ignored.
type Listener interface {
	TransformStarted(TransformStartedEvent)
	TransformCompleted(TransformCompletedEvent)
	TransformFailed(TransformFailedEvent)
	ProfileMatched(ProfileMatchedEvent)
	SpecLoaded(SpecLoadedEvent)
	SpecRejected(SpecRejectedEvent)
}

// NopListener implements Listener with no-ops. Embed it to implement only
// the callbacks of interest.
type NopListener struct{}

func (NopListener) TransformStarted(TransformStartedEvent)     {}
func (NopListener) TransformCompleted(TransformCompletedEvent) {}
func (NopListener) TransformFailed(TransformFailedEvent)       {}
func (NopListener) ProfileMatched(ProfileMatchedEvent)         {}
func (NopListener) SpecLoaded(SpecLoadedEvent)                 {}
func (NopListener) SpecRejected(SpecRejectedEvent)             {}

// notifier fans events out to listeners, isolating the engine from
// listener panics.
type notifier struct {
	listeners []Listener
	logger    observability.Logger
}

func (n *notifier) emit(event string, fn func(Listener)) {
	for _, l := range n.listeners {
		n.call(event, l, fn)
	}
}

func (n *notifier) call(event string, l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("telemetry listener panicked",
				observability.String("event", event),
				observability.String("listener", fmt.Sprintf("%T", l)),
				observability.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn(l)
}

func (n *notifier) transformStarted(e TransformStartedEvent) {
	n.emit("transform_started", func(l Listener) { l.TransformStarted(e) })
}

func (n *notifier) transformCompleted(e TransformCompletedEvent) {
	n.emit("transform_completed", func(l Listener) { l.TransformCompleted(e) })
}

func (n *notifier) transformFailed(e TransformFailedEvent) {
	n.emit("transform_failed", func(l Listener) { l.TransformFailed(e) })
}

func (n *notifier) profileMatched(e ProfileMatchedEvent) {
	n.emit("profile_matched", func(l Listener) { l.ProfileMatched(e) })
}

func (n *notifier) specLoaded(e SpecLoadedEvent) {
	n.emit("spec_loaded", func(l Listener) { l.SpecLoaded(e) })
}

func (n *notifier) specRejected(e SpecRejectedEvent) {
	n.emit("spec_rejected", func(l Listener) { l.SpecRejected(e) })
}
