package connect

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/gateway"
	"github.com/n8n-bridge/bridged-go/internal/observability"
	"github.com/n8n-bridge/bridged-go/internal/storage"
)

var (
	// ErrHandshakeInProgress is returned by Start while a session is live.
	ErrHandshakeInProgress = errors.New("a connection handshake is already in progress")
	// ErrEmptyBaseURL is returned by Start for a blank instance URL.
	ErrEmptyBaseURL = errors.New("instance base URL must not be empty")
	// ErrNoHandshake is returned by Cancel when nothing is in flight.
	ErrNoHandshake = errors.New("no connection handshake in progress")
)

// Broker is the slice of the gateway client the orchestrator needs.
type Broker interface {
	InitAuthorization(ctx context.Context, userID, baseURL string) (string, error)
}

// Repository is the slice of the connection store the orchestrator polls.
type Repository interface {
	FetchActive(userID string) (*storage.ConnectionInfo, error)
}

// BrowserLauncher opens an authorization URL for the user.
type BrowserLauncher func(authURL string) error

// Options tune a handshake session. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration
	Deadline     time.Duration
	Launcher     BrowserLauncher
}

const (
	defaultPollInterval = 4 * time.Second
	defaultDeadline     = 3 * time.Minute
)

// Orchestrator drives the account-linking handshake: it requests an
// authorization URL from the broker, opens the system browser, and waits
// for the first of three signals (callback message, repository poll,
// deadline) to settle the session. At most one session is live at a time.
type Orchestrator struct {
	broker         Broker
	repo           Repository
	userID         string
	expectedOrigin string
	pollInterval   time.Duration
	deadline       time.Duration
	launch         BrowserLauncher
	metrics        *observability.MetricsManager
	logger         *zap.Logger

	mu      sync.Mutex
	session *session
}

// session is one handshake attempt. All mutation happens under the
// orchestrator mutex; the settled flag makes settling one-shot.
type session struct {
	id        string
	baseURL   string
	state     State
	failure   FailureKind
	detail    string
	settled   bool
	startedAt time.Time
	cancel    context.CancelFunc
	logger    *zap.Logger
}

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	SessionID string      `json:"session_id,omitempty"`
	State     string      `json:"state"`
	Failure   FailureKind `json:"failure_kind,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	BaseURL   string      `json:"base_url,omitempty"`
	StartedAt time.Time   `json:"started_at,omitempty"`
}

// NewOrchestrator builds an orchestrator for one bridge user. The expected
// origin guards completion messages delivered via DeliverMessage.
func NewOrchestrator(broker Broker, repo Repository, userID, expectedOrigin string, opts Options, metrics *observability.MetricsManager, logger *zap.Logger) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Deadline <= 0 {
		opts.Deadline = defaultDeadline
	}
	if opts.Launcher == nil {
		opts.Launcher = LaunchBrowser
	}
	return &Orchestrator{
		broker:         broker,
		repo:           repo,
		userID:         userID,
		expectedOrigin: strings.TrimSuffix(expectedOrigin, "/"),
		pollInterval:   opts.PollInterval,
		deadline:       opts.Deadline,
		launch:         opts.Launcher,
		metrics:        metrics,
		logger:         logger.Named("connect"),
	}
}

// Start begins a new handshake for the given instance URL and returns the
// session id. It fails fast when a session is already live.
func (o *Orchestrator) Start(ctx context.Context, baseURL string) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return "", ErrEmptyBaseURL
	}

	o.mu.Lock()
	if o.session != nil && !o.session.settled {
		o.mu.Unlock()
		return "", ErrHandshakeInProgress
	}

	sess := &session{
		id:        ulid.Make().String(),
		baseURL:   baseURL,
		state:     StateInitiating,
		startedAt: time.Now(),
	}
	sess.logger = o.logger.With(
		zap.String("session_id", sess.id),
		zap.String("base_url", baseURL),
	)
	o.session = sess
	o.mu.Unlock()

	sess.logger.Info("handshake started")

	authURL, err := o.broker.InitAuthorization(ctx, o.userID, baseURL)
	if err != nil {
		kind := FailureNetwork
		if errors.Is(err, gateway.ErrMalformedResponse) {
			kind = FailureProtocol
		}
		sess.logger.Warn("authorization init failed", zap.Error(err))
		o.settle(sess, StateFailed, kind, err.Error())
		return sess.id, nil
	}

	o.mu.Lock()
	if sess.settled {
		// Cancelled while the init call was in flight.
		o.mu.Unlock()
		return sess.id, nil
	}
	o.mu.Unlock()

	if runtime.GOOS == osLinux && !hasGUIEnvironment() {
		sess.logger.Warn("no GUI session detected, attempting browser launch anyway")
	}
	if err := o.launch(authURL); err != nil {
		sess.logger.Warn("browser launch failed", zap.Error(err))
		o.settle(sess, StateFailed, FailurePopupBlocked, err.Error())
		return sess.id, nil
	}

	o.mu.Lock()
	if sess.settled {
		// Cancelled while the browser was launching.
		o.mu.Unlock()
		return sess.id, nil
	}
	sess.state = StateAwaitingAuthorization
	watchCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	o.mu.Unlock()

	sess.logger.Info("awaiting authorization",
		zap.Duration("poll_interval", o.pollInterval),
		zap.Duration("deadline", o.deadline))

	go o.watch(watchCtx, sess)

	return sess.id, nil
}

// watch runs the poll ticker and the deadline timer for one session. It
// exits when the session settles or either signal fires.
func (o *Orchestrator) watch(ctx context.Context, sess *session) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(o.deadline)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := o.repo.FetchActive(o.userID)
			if err != nil {
				continue
			}
			sess.logger.Info("active connection detected by poll",
				zap.String("connection_id", info.ID))
			o.settle(sess, StateConnected, FailureNone, "")
			return
		case <-timer.C:
			o.settle(sess, StateTimedOut, FailureNone, "authorization deadline elapsed")
			return
		}
	}
}

// DeliverMessage feeds a completion message from the callback listener into
// the live session. Messages from an unexpected origin are dropped.
func (o *Orchestrator) DeliverMessage(origin string, msg CompletionMessage) {
	if !o.originAllowed(origin) {
		o.logger.Warn("completion message from unexpected origin dropped",
			zap.String("origin", origin))
		return
	}

	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		return
	}

	switch msg.Type {
	case MessageTypeSuccess:
		o.settle(sess, StateConnected, FailureNone, "")
	case MessageTypeError:
		detail := msg.Message
		if detail == "" {
			detail = "authorization reported an error"
		}
		o.settle(sess, StateFailed, FailureRemote, detail)
	default:
		sess.logger.Debug("ignoring completion message with unknown type",
			zap.String("type", msg.Type))
	}
}

// Cancel settles the live session as cancelled.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	sess := o.session
	if sess == nil || sess.settled {
		o.mu.Unlock()
		return ErrNoHandshake
	}
	o.mu.Unlock()
	o.settle(sess, StateCancelled, FailureNone, "cancelled by consumer")
	return nil
}

// Dispose tears down any live session. Safe to call repeatedly.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	sess := o.session
	if sess == nil || sess.settled {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.settle(sess, StateCancelled, FailureNone, "orchestrator disposed")
}

// Status reports the current session, or idle when none exists.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return Status{State: StateIdle.String()}
	}
	sess := o.session
	return Status{
		SessionID: sess.id,
		State:     sess.state.String(),
		Failure:   sess.failure,
		Detail:    sess.detail,
		BaseURL:   sess.baseURL,
		StartedAt: sess.startedAt,
	}
}

// settle transitions a session to a terminal state exactly once and tears
// down its signals. Calls for an already-settled or superseded session are
// no-ops.
func (o *Orchestrator) settle(sess *session, state State, kind FailureKind, detail string) {
	o.mu.Lock()
	if sess != o.session || sess.settled {
		o.mu.Unlock()
		return
	}
	sess.settled = true
	sess.state = state
	sess.failure = kind
	sess.detail = detail
	cancel := sess.cancel
	sess.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	elapsed := time.Since(sess.startedAt)
	if o.metrics != nil {
		o.metrics.RecordHandshakeOutcome(state.String(), elapsed)
	}

	fields := []zap.Field{
		zap.String("state", state.String()),
		zap.Duration("elapsed", elapsed),
	}
	if kind != FailureNone {
		fields = append(fields, zap.String("failure_kind", string(kind)))
	}
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
	}
	sess.logger.Info("handshake settled", fields...)
}

func (o *Orchestrator) originAllowed(origin string) bool {
	return strings.TrimSuffix(origin, "/") == o.expectedOrigin
}
