package monitor

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/flowwatch/metrics"
	"github.com/project-flogo/flowwatch/poller"
	services "github.com/project-flogo/flowwatch/service"
	"github.com/project-flogo/flowwatch/state"
	"github.com/project-flogo/flowwatch/support"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultPort       = 9090
	DefaultSessionTTL = 30 * time.Minute

	// DefaultMessageLimit is the number of intermediate messages a session keeps per run
	DefaultMessageLimit = 500

	sweepInterval = time.Minute
)

// Option configures a Monitor
type Option func(*Monitor)

func WithRecorder(recorder state.Recorder, mode state.RecordingMode) Option {
	return func(m *Monitor) {
		m.recorder = recorder
		m.mode = mode
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Monitor) {
		m.sessionTTL = ttl
	}
}

// WithPollerOptions sets the options of the driver created for every session
func WithPollerOptions(opts ...poller.Option) Option {
	return func(m *Monitor) {
		m.pollerOpts = append(m.pollerOpts, opts...)
	}
}

// WithMessageLimit caps the intermediate messages a session keeps for its run, zero keeps all
func WithMessageLimit(limit int) Option {
	return func(m *Monitor) {
		if limit >= 0 {
			m.messageLimit = limit
		}
	}
}

func WithLogger(logger log.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithRegistry serves the metrics of the given registry instead of the default one
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Monitor) {
		m.registry = reg
	}
}

func WithPort(port int) Option {
	return func(m *Monitor) {
		m.port = port
	}
}

// Monitor exposes sessions watching workflow runs over REST and WebSocket
type Monitor struct {
	engine       Engine
	recorder     state.Recorder
	mode         state.RecordingMode
	sessionTTL   time.Duration
	messageLimit int
	pollerOpts   []poller.Option
	registry     *prometheus.Registry
	port         int
	logger       log.Logger

	sessions *support.Cache[*Session]
	handler  http.Handler
	server   *support.Server
}

func New(engine Engine, opts ...Option) *Monitor {
	m := &Monitor{
		engine:       engine,
		mode:         state.RecordingModeTransitions,
		sessionTTL:   DefaultSessionTTL,
		messageLimit: DefaultMessageLimit,
		port:         DefaultPort,
		logger:       log.ChildLogger(log.RootLogger(), "monitor"),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = metrics.Default()
	}

	m.sessions = support.NewCache[*Session](m.sessionTTL, sweepInterval, m.evicted)
	m.handler = otelhttp.NewHandler(m.routes(), "flowwatch")
	m.server = support.NewServer(":"+strconv.Itoa(m.port), m.handler)

	return m
}

func (m *Monitor) Name() string {
	return services.ServiceMonitor
}

// Start serves the monitor API on the configured port
func (m *Monitor) Start() error {
	if err := m.server.Start(); err != nil {
		return err
	}
	m.logger.Infof("Monitor listening on %s", m.server.ListenAddr())
	return nil
}

// Stop shuts the server down and closes every session
func (m *Monitor) Stop() error {
	var err error
	if m.server.IsStarted() {
		err = m.server.Stop(5 * time.Second)
	}
	m.sessions.Close()
	m.sessions.Purge()
	return err
}

// Addr returns the address the server is bound to once started
func (m *Monitor) Addr() string {
	return m.server.ListenAddr()
}

// Handler returns the instrumented REST handler
func (m *Monitor) Handler() http.Handler {
	return m.handler
}

// CreateSession creates an idle session
func (m *Monitor) CreateSession() *Session {
	id := uuid.NewString()
	s := newSession(id, m.engine, m.recorder, m.mode, m.messageLimit, m.pollerOpts, log.ChildLogger(m.logger, "session"))
	m.sessions.Set(id, s)
	metrics.SetSessions(m.sessions.Len())

	m.logger.Debugf("Created session [%s]", id)
	return s
}

// Session returns the session, refreshing its ttl
func (m *Monitor) Session(id string) (*Session, bool) {
	return m.sessions.Get(id)
}

// DeleteSession stops the session and removes it
func (m *Monitor) DeleteSession(id string) bool {
	return m.sessions.Invalidate(id)
}

// Sessions returns the number of live sessions
func (m *Monitor) Sessions() int {
	return m.sessions.Len()
}

// History returns the recorded run of an instance
func (m *Monitor) History(ctx context.Context, instanceId string) (*state.Summary, *state.RunInfo, error) {
	if m.recorder == nil {
		return nil, nil, state.ErrRunNotFound
	}
	info, states, err := m.recorder.History(ctx, instanceId)
	if err != nil {
		return nil, nil, err
	}
	return state.Summarize(instanceId, states), info, nil
}

func (m *Monitor) evicted(id string, s *Session) {
	s.Close()
	metrics.SetSessions(m.sessions.Len())
	m.logger.Debugf("Closed session [%s]", id)
}
