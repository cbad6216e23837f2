package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clearroute/payment-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("runs operation once and freezes the response", func(t *testing.T) {
		h := newHarness(t)
		var runs atomic.Int32
		op := func(ctx context.Context) (string, any, error) {
			runs.Add(1)
			return "res_1", map[string]string{"id": "res_1"}, nil
		}

		first, err := h.runner.Do(ctx, "key-1", "hash-a", op)
		require.NoError(t, err)

		second, err := h.runner.Do(ctx, "key-1", "hash-a", op)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), runs.Load())
	})

	t.Run("same key with different request hash is rejected", func(t *testing.T) {
		h := newHarness(t)
		op := func(ctx context.Context) (string, any, error) {
			return "res_1", map[string]string{"id": "res_1"}, nil
		}

		_, err := h.runner.Do(ctx, "key-1", "hash-a", op)
		require.NoError(t, err)

		_, err = h.runner.Do(ctx, "key-1", "hash-b", op)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeKeyReuse))
	})

	t.Run("terminal failure is frozen and replayed", func(t *testing.T) {
		h := newHarness(t)
		var runs atomic.Int32
		op := func(ctx context.Context) (string, any, error) {
			runs.Add(1)
			return "", nil, domain.NewCardDeclinedError()
		}

		_, err := h.runner.Do(ctx, "key-1", "hash-a", op)
		require.True(t, domain.IsErrorCode(err, domain.ErrCodeCardDeclined))

		_, err = h.runner.Do(ctx, "key-1", "hash-a", op)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeCardDeclined))
		assert.Equal(t, int32(1), runs.Load(), "frozen failures must not re-run the operation")
	})

	t.Run("transient failure releases the key for replay", func(t *testing.T) {
		h := newHarness(t)
		var runs atomic.Int32
		op := func(ctx context.Context) (string, any, error) {
			if runs.Add(1) == 1 {
				return "", nil, domain.NewBankUnavailableError(nil)
			}
			return "res_1", map[string]string{"id": "res_1"}, nil
		}

		_, err := h.runner.Do(ctx, "key-1", "hash-a", op)
		require.True(t, domain.IsErrorCode(err, domain.ErrCodeBankUnavailable))

		body, err := h.runner.Do(ctx, "key-1", "hash-a", op)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"res_1"}`, string(body))
		assert.Equal(t, int32(2), runs.Load())
	})

	t.Run("concurrent callers share a single execution", func(t *testing.T) {
		h := newHarness(t)
		var runs atomic.Int32
		release := make(chan struct{})
		op := func(ctx context.Context) (string, any, error) {
			runs.Add(1)
			<-release
			return "res_1", map[string]string{"id": "res_1"}, nil
		}

		const callers = 5
		results := make([][]byte, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = h.runner.Do(ctx, "key-1", "hash-a", op)
			}(i)
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), runs.Load())
		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.JSONEq(t, `{"id":"res_1"}`, string(results[i]))
		}
	})

	t.Run("in-flight holder past the wait bound yields a retryable error", func(t *testing.T) {
		h := newHarness(t)
		h.runner.lockWait = 30 * time.Millisecond
		release := make(chan struct{})
		op := func(ctx context.Context) (string, any, error) {
			<-release
			return "res_1", nil, nil
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = h.runner.Do(ctx, "key-1", "hash-a", op)
		}()

		time.Sleep(10 * time.Millisecond)
		_, err := h.runner.Do(ctx, "key-1", "hash-a", func(ctx context.Context) (string, any, error) {
			t.Error("second caller must never run the operation")
			return "", nil, nil
		})
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeConcurrency))

		close(release)
		<-done
	})

	t.Run("missing key is rejected", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.runner.Do(ctx, "", "hash-a", func(ctx context.Context) (string, any, error) {
			return "", nil, nil
		})
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("outcome freezes even when the caller goes away mid-operation", func(t *testing.T) {
		h := newHarness(t)
		runner := NewIdempotencyRunner(&ctxGuardedIdemRepo{h.idem}, h.logger)
		runner.pollInterval = 5 * time.Millisecond

		reqCtx, cancel := context.WithCancel(context.Background())
		var runs atomic.Int32
		op := func(ctx context.Context) (string, any, error) {
			runs.Add(1)
			// caller disconnects while the operation is in flight
			cancel()
			return "res_1", map[string]string{"id": "res_1"}, nil
		}

		body, err := runner.Do(reqCtx, "key-1", "hash-a", op)
		require.NoError(t, err, "a dead caller must not stop the outcome from freezing")

		replay, err := runner.Do(ctx, "key-1", "hash-a", op)
		require.NoError(t, err)
		assert.Equal(t, body, replay)
		assert.Equal(t, int32(1), runs.Load())
	})
}
