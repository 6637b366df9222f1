package prediction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Do(t *testing.T) {
	transient := fmt.Errorf("%w: reset", domain.ErrTransientStorage)

	tests := []struct {
		name      string
		policy    RetryPolicy
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"success first try", fastRetry, 0, transient, 1, false},
		{"recovers", fastRetry, 2, transient, 3, false},
		{"exhausted", fastRetry, 5, transient, 3, true},
		{"permanent not retried", fastRetry, 5, errors.New("bad row"), 1, true},
		{"zero attempts means one", RetryPolicy{}, 5, transient, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, retries := 0, 0
			err := tt.policy.Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, func(int, error) { retries++ })

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCalls-1, retries)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryPolicy_DoAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 10, InitialBackoff: time.Hour}

	calls := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("%w: reset", domain.ErrTransientStorage)
	}, nil)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, domain.ErrTransientStorage)
}
