package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stars-host/models"
	"stars-host/services"
	"stars-host/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type scriptedRunner struct {
	mu    sync.Mutex
	calls map[uint]int
	// errs[i] is returned by the i-th call for any game; nil or past the end means success
	errs  []error
	block chan struct{}
}

func newScriptedRunner(errs ...error) *scriptedRunner {
	return &scriptedRunner{calls: map[uint]int{}, errs: errs}
}

func (r *scriptedRunner) Run(ctx context.Context, gameID uint) (*models.Turn, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.calls[gameID]
	r.calls[gameID] = n + 1
	if n < len(r.errs) && r.errs[n] != nil {
		return nil, r.errs[n]
	}
	return &models.Turn{GameID: gameID, Year: 2400 + n}, nil
}

func (r *scriptedRunner) count(gameID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[gameID]
}

var fastRetry = RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond}

func startWorker(t *testing.T, runner GameRunner, policy RetryPolicy) (*GenerationWorker, context.CancelFunc) {
	t.Helper()
	log, _ := testutil.ObservedLogger()
	w := NewGenerationWorker(runner, policy, 8, log)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		w.Wait()
	})
	return w, cancel
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Factor: 2}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(40))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	transient := &services.EngineTimeoutError{Timeout: time.Minute}

	assert.True(t, p.ShouldRetry(1, transient))
	assert.True(t, p.ShouldRetry(2, transient))
	assert.False(t, p.ShouldRetry(3, transient))
	assert.False(t, p.ShouldRetry(1, nil))
	assert.False(t, p.ShouldRetry(1, &services.InvalidStateError{State: models.GameStateFinished}))
	assert.False(t, p.ShouldRetry(1, services.ErrGameNotFound))
	assert.False(t, p.ShouldRetry(1, &services.ConfigError{Err: errors.New("bad")}))
}

func TestGenerationWorker_Success(t *testing.T) {
	runner := newScriptedRunner()
	w, _ := startWorker(t, runner, fastRetry)

	require.True(t, w.Enqueue(1))
	assert.Eventually(t, func() bool { return runner.count(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, runner.count(1))
}

func TestGenerationWorker_RetriesTransientFailure(t *testing.T) {
	runner := newScriptedRunner(&services.EngineTimeoutError{Timeout: time.Second})
	w, _ := startWorker(t, runner, fastRetry)

	require.True(t, w.Enqueue(1))
	assert.Eventually(t, func() bool { return runner.count(1) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, runner.count(1))
}

func TestGenerationWorker_GivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("engine output missing")
	runner := newScriptedRunner(boom, boom, boom, boom, boom)
	w, _ := startWorker(t, runner, fastRetry)

	require.True(t, w.Enqueue(1))
	assert.Eventually(t, func() bool { return runner.count(1) == 3 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, runner.count(1))
}

func TestGenerationWorker_PermanentFailureIsNotRetried(t *testing.T) {
	runner := newScriptedRunner(&services.InvalidStateError{GameID: 1, State: models.GameStateFinished, Op: "run"})
	w, _ := startWorker(t, runner, fastRetry)

	require.True(t, w.Enqueue(1))
	assert.Eventually(t, func() bool { return runner.count(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, runner.count(1))
}

func (w *GenerationWorker) isPending(gameID uint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending[gameID]
}

func TestGenerationWorker_DeduplicatesQueuedGames(t *testing.T) {
	runner := newScriptedRunner()
	runner.block = make(chan struct{})
	w, _ := startWorker(t, runner, fastRetry)

	// game 1 occupies the worker, game 2 waits in the queue
	require.True(t, w.Enqueue(1))
	require.Eventually(t, func() bool { return len(w.queue) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, w.Enqueue(1), "running game must not be queued again")
	require.True(t, w.Enqueue(2))
	assert.False(t, w.Enqueue(2))

	close(runner.block)
	assert.Eventually(t, func() bool { return runner.count(1) == 1 && runner.count(2) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, runner.count(1))
	assert.Equal(t, 1, runner.count(2))
}

func TestGenerationWorker_NoRequeueWhileRetryWaits(t *testing.T) {
	runner := newScriptedRunner(&services.EngineTimeoutError{Timeout: time.Second})
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: time.Second}
	w, _ := startWorker(t, runner, policy)

	require.True(t, w.Enqueue(1))
	require.Eventually(t, func() bool { return runner.count(1) == 1 }, 2*time.Second, 5*time.Millisecond)

	// the retry is armed; a scheduler tick or operator request must be refused
	time.Sleep(20 * time.Millisecond)
	assert.False(t, w.Enqueue(1))

	require.Eventually(t, func() bool { return runner.count(1) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, runner.count(1), "one request, one successful generation")

	// released once the retry succeeded
	require.Eventually(t, func() bool { return !w.isPending(1) }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, w.Enqueue(1))
}

func TestGenerationWorker_ReleasesAfterGivingUp(t *testing.T) {
	runner := newScriptedRunner(&services.InvalidStateError{GameID: 1, State: models.GameStateFinished, Op: "run"})
	w, _ := startWorker(t, runner, fastRetry)

	require.True(t, w.Enqueue(1))
	require.Eventually(t, func() bool { return runner.count(1) == 1 && !w.isPending(1) }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, w.Enqueue(1))
}

func TestGenerationWorker_StopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	runner := newScriptedRunner(errors.New("boom"))
	log, _ := testutil.ObservedLogger()
	slow := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour}
	w := NewGenerationWorker(runner, slow, 4, log)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.True(t, w.Enqueue(1))
	assert.Eventually(t, func() bool { return runner.count(1) == 1 }, 2*time.Second, 5*time.Millisecond)

	// a retry is now waiting an hour; cancellation must release it
	cancel()
	w.Wait()
}

func TestGenerationWorker_RunSync(t *testing.T) {
	log, _ := testutil.ObservedLogger()

	runner := newScriptedRunner(errors.New("flaky"))
	w := NewGenerationWorker(runner, fastRetry, 1, log)
	turn, err := w.RunSync(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2401, turn.Year)
	assert.Equal(t, 2, runner.count(5))

	notFound := newScriptedRunner(services.ErrGameNotFound)
	w = NewGenerationWorker(notFound, fastRetry, 1, log)
	_, err = w.RunSync(context.Background(), 6)
	assert.ErrorIs(t, err, services.ErrGameNotFound)
	assert.Equal(t, 1, notFound.count(6))
}
