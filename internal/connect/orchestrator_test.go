package connect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/n8n-bridge/bridged-go/internal/gateway"
	"github.com/n8n-bridge/bridged-go/internal/storage"
)

const testOrigin = "https://broker.example.com"

type fakeBroker struct {
	err   error
	calls int
}

func (f *fakeBroker) InitAuthorization(_ context.Context, _, baseURL string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return testOrigin + "/authorize?instance=" + baseURL, nil
}

// blockingBroker parks InitAuthorization until released, so tests can land
// other calls while the init request is in flight.
type blockingBroker struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingBroker) InitAuthorization(_ context.Context, _, baseURL string) (string, error) {
	close(b.started)
	<-b.release
	return testOrigin + "/authorize?instance=" + baseURL, nil
}

// fakeRepo returns ErrNoConnection until activateAfter calls have been made.
type fakeRepo struct {
	mu            sync.Mutex
	activateAfter int
	calls         int
}

func (f *fakeRepo) FetchActive(string) (*storage.ConnectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls < f.activateAfter {
		return nil, storage.ErrNoConnection
	}
	return &storage.ConnectionInfo{ID: "conn-1", IsActive: true}, nil
}

func (f *fakeRepo) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func neverActive() *fakeRepo { return &fakeRepo{activateAfter: 1 << 30} }

func noopLauncher(string) error { return nil }

func newTestOrchestrator(t *testing.T, broker Broker, repo Repository, opts Options) *Orchestrator {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.Deadline == 0 {
		opts.Deadline = time.Second
	}
	if opts.Launcher == nil {
		opts.Launcher = noopLauncher
	}
	o := NewOrchestrator(broker, repo, "user-1", testOrigin, opts, nil, zaptest.NewLogger(t))
	t.Cleanup(o.Dispose)
	return o
}

func waitForState(t *testing.T, o *Orchestrator, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return o.Status().State == state.String()
	}, 2*time.Second, 2*time.Millisecond, "expected state %s, last seen %s", state, o.Status().State)
}

func TestStart(t *testing.T) {
	t.Run("empty base url is rejected", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "  ")
		assert.ErrorIs(t, err, ErrEmptyBaseURL)
		assert.Equal(t, StateIdle.String(), o.Status().State)
	})

	t.Run("second start while unsettled is rejected", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		id, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		_, err = o.Start(context.Background(), "https://other.example.com")
		assert.ErrorIs(t, err, ErrHandshakeInProgress)

		status := o.Status()
		assert.Equal(t, id, status.SessionID)
		assert.Equal(t, "https://n8n.example.com", status.BaseURL)
	})

	t.Run("init network failure settles failed", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{err: errors.New("dial tcp: refused")}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		status := o.Status()
		assert.Equal(t, StateFailed.String(), status.State)
		assert.Equal(t, FailureNetwork, status.Failure)
	})

	t.Run("init protocol failure settles failed", func(t *testing.T) {
		brokerErr := fmt.Errorf("init authorization: %w", gateway.ErrMalformedResponse)
		o := newTestOrchestrator(t, &fakeBroker{err: brokerErr}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		assert.Equal(t, FailureProtocol, o.Status().Failure)
	})

	t.Run("browser launch failure settles popup blocked", func(t *testing.T) {
		opts := Options{Launcher: func(string) error { return errors.New("no display") }}
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), opts)
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		status := o.Status()
		assert.Equal(t, StateFailed.String(), status.State)
		assert.Equal(t, FailurePopupBlocked, status.Failure)
	})

	t.Run("launcher receives the authorization url", func(t *testing.T) {
		var launched string
		opts := Options{Launcher: func(url string) error { launched = url; return nil }}
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), opts)
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		assert.Contains(t, launched, testOrigin+"/authorize")
	})

	t.Run("terminal session allows a fresh start", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		first, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)
		require.NoError(t, o.Cancel())

		second, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
		assert.Equal(t, StateAwaitingAuthorization.String(), o.Status().State)
	})
}

func TestSettleSignals(t *testing.T) {
	t.Run("success message settles connected", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		o.DeliverMessage(testOrigin, CompletionMessage{Type: MessageTypeSuccess})
		assert.Equal(t, StateConnected.String(), o.Status().State)
	})

	t.Run("message before poll wins and polling stops", func(t *testing.T) {
		repo := neverActive()
		o := newTestOrchestrator(t, &fakeBroker{}, repo, Options{PollInterval: 5 * time.Millisecond})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		o.DeliverMessage(testOrigin, CompletionMessage{Type: MessageTypeSuccess})
		settledPolls := repo.pollCount()
		time.Sleep(40 * time.Millisecond)
		assert.LessOrEqual(t, repo.pollCount(), settledPolls+1)
		assert.Equal(t, StateConnected.String(), o.Status().State)
	})

	t.Run("error message settles failed with detail", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		o.DeliverMessage(testOrigin, CompletionMessage{Type: MessageTypeError, Message: "access denied"})
		status := o.Status()
		assert.Equal(t, StateFailed.String(), status.State)
		assert.Equal(t, FailureRemote, status.Failure)
		assert.Equal(t, "access denied", status.Detail)
	})

	t.Run("message from foreign origin is dropped", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		o.DeliverMessage("https://evil.example.com", CompletionMessage{Type: MessageTypeSuccess})
		assert.Equal(t, StateAwaitingAuthorization.String(), o.Status().State)
	})

	t.Run("unknown message type is ignored", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		o.DeliverMessage(testOrigin, CompletionMessage{Type: "ping"})
		assert.Equal(t, StateAwaitingAuthorization.String(), o.Status().State)
	})

	t.Run("poll settles connected once a record turns active", func(t *testing.T) {
		repo := &fakeRepo{activateAfter: 3}
		o := newTestOrchestrator(t, &fakeBroker{}, repo, Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		waitForState(t, o, StateConnected)
		assert.GreaterOrEqual(t, repo.pollCount(), 3)
	})

	t.Run("deadline settles timed out", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{
			PollInterval: 5 * time.Millisecond,
			Deadline:     30 * time.Millisecond,
		})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		waitForState(t, o, StateTimedOut)

		// Later signals are no-ops after settling.
		o.DeliverMessage(testOrigin, CompletionMessage{Type: MessageTypeSuccess})
		assert.Equal(t, StateTimedOut.String(), o.Status().State)
	})

	t.Run("duplicate messages settle once", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		o.DeliverMessage(testOrigin, CompletionMessage{Type: MessageTypeError, Message: "denied"})
		o.DeliverMessage(testOrigin, CompletionMessage{Type: MessageTypeSuccess})
		status := o.Status()
		assert.Equal(t, StateFailed.String(), status.State)
		assert.Equal(t, FailureRemote, status.Failure)
	})
}

func TestCancelAndDispose(t *testing.T) {
	t.Run("cancel settles cancelled", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		require.NoError(t, o.Cancel())
		assert.Equal(t, StateCancelled.String(), o.Status().State)
	})

	t.Run("cancel without a session errors", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		assert.ErrorIs(t, o.Cancel(), ErrNoHandshake)
	})

	t.Run("cancel after settle errors", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)
		require.NoError(t, o.Cancel())
		assert.ErrorIs(t, o.Cancel(), ErrNoHandshake)
	})

	t.Run("dispose is idempotent", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)

		o.Dispose()
		o.Dispose()
		assert.Equal(t, StateCancelled.String(), o.Status().State)
	})

	t.Run("cancel during authorization init skips browser launch", func(t *testing.T) {
		broker := &blockingBroker{started: make(chan struct{}), release: make(chan struct{})}
		var mu sync.Mutex
		launches := 0
		o := newTestOrchestrator(t, broker, neverActive(), Options{Launcher: func(string) error {
			mu.Lock()
			launches++
			mu.Unlock()
			return nil
		}})

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := o.Start(context.Background(), "https://n8n.example.com")
			assert.NoError(t, err)
		}()

		<-broker.started
		require.NoError(t, o.Cancel())
		close(broker.release)
		<-done

		assert.Equal(t, StateCancelled.String(), o.Status().State)
		mu.Lock()
		defer mu.Unlock()
		assert.Zero(t, launches, "browser launched for a cancelled session")
	})

	t.Run("concurrent cancel and completion settle exactly once", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeBroker{}, neverActive(), Options{})
		_, err := o.Start(context.Background(), "https://n8n.example.com")
		require.NoError(t, err)
		waitForState(t, o, StateAwaitingAuthorization)

		var wg sync.WaitGroup
		release := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-release
				_ = o.Cancel()
				o.Dispose()
				o.DeliverMessage(testOrigin, CompletionMessage{Type: MessageTypeSuccess})
			}()
		}
		close(release)
		wg.Wait()

		status := o.Status()
		assert.Contains(t,
			[]string{StateCancelled.String(), StateConnected.String()},
			status.State)
		assert.ErrorIs(t, o.Cancel(), ErrNoHandshake)
	})
}
