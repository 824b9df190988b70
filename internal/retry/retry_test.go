package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDo(t *testing.T) {
	t.Parallel()

	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		policy    Policy
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{name: "first call succeeds", policy: fastPolicy(3), wantCalls: 1},
		{name: "succeeds after retries", policy: fastPolicy(3), failures: 2, failWith: errTransient, wantCalls: 3},
		{name: "exhausted", policy: fastPolicy(3), failures: 5, failWith: errTransient, wantCalls: 3, wantErr: errTransient},
		{
			name: "not retryable",
			policy: Policy{
				Attempts:       3,
				InitialBackoff: time.Millisecond,
				ShouldRetry:    func(err error) bool { return !errors.Is(err, errFatal) },
			},
			failures: 5, failWith: errFatal, wantCalls: 1, wantErr: errFatal,
		},
		{name: "canceled is not retried", policy: fastPolicy(3), failures: 5, failWith: context.Canceled, wantCalls: 1, wantErr: context.Canceled},
		{name: "zero policy uses defaults", policy: Policy{InitialBackoff: time.Millisecond}, failures: 5, failWith: errTransient, wantCalls: DefaultAttempts, wantErr: errTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			var retries []int
			tt.policy.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }

			err := Do(context.Background(), tt.policy, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Len(t, retries, tt.wantCalls-1)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDo_ContextDoneDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100*time.Millisecond, Backoff(0, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, Backoff(2, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, time.Second, Backoff(10, 100*time.Millisecond, time.Second, 0))

	jittered := Backoff(0, 100*time.Millisecond, time.Second, 0.5)
	assert.GreaterOrEqual(t, jittered, 100*time.Millisecond)
	assert.LessOrEqual(t, jittered, 150*time.Millisecond)
}
