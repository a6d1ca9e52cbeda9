// Package realtime delivers job events for one analysis job at a time. It
// prefers a websocket push channel, reconnects with exponential backoff on
// abnormal closes, and falls back to polling the status endpoint once the
// reconnect budget is spent. Whatever the source, consumers read a single
// stream of normalized events.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
	"github.com/sirupsen/logrus"
)

// StatusFetcher reads the job status. *analysis.Client satisfies it.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobID string) (*analysis.StatusResponse, error)
}

// Manager owns at most one live session. It is safe for concurrent use.
type Manager struct {
	config  *Config
	dialer  Dialer
	fetcher StatusFetcher
	logger  *logrus.Logger
	now     func() time.Time

	// opMu serialises Connect and Close
	opMu sync.Mutex

	mu      sync.Mutex
	session *session
	status  ChannelStatus
}

type session struct {
	jobID  string
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}

	mu   sync.Mutex
	conn Conn
}

func (s *session) setConn(c Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

func (s *session) closeConn() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

type wsOutcome int

const (
	wsTerminal wsOutcome = iota
	wsClosed
	wsCancelled
	wsExhausted
	wsAbnormal
)

// NewManager creates a manager. dialer may be nil when the websocket is
// disabled; fetcher may be nil when polling is disabled.
func NewManager(config *Config, dialer Dialer, fetcher StatusFetcher) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("realtime: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.WebSocketEnabled && dialer == nil {
		dialer = NewWebsocketDialer(config)
	}
	if config.PollingEnabled && fetcher == nil {
		return nil, fmt.Errorf("realtime: polling requires a status fetcher")
	}
	return &Manager{
		config:  config,
		dialer:  dialer,
		fetcher: fetcher,
		logger:  config.Logger,
		now:     time.Now,
		status:  idleStatus(),
	}, nil
}

// Status returns the current channel status.
func (m *Manager) Status() ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect tears down any previous session and starts delivering events for
// jobID. The returned channel is closed when the session ends: after a
// terminal event, after Close, or when ctx is cancelled.
func (m *Manager) Connect(ctx context.Context, jobID string) (<-chan Event, error) {
	if jobID == "" {
		return nil, fmt.Errorf("realtime: job id is required")
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.teardown()

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		jobID:  jobID,
		ctx:    sctx,
		cancel: cancel,
		events: make(chan Event, m.config.EventBuffer),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.session = s
	m.status = idleStatus()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"job_id":    jobID,
		"websocket": m.config.WebSocketEnabled,
		"polling":   m.config.PollingEnabled,
	}).Debug("Starting realtime session")

	go m.run(s)
	return s.events, nil
}

// Close ends the current session and waits for it to stop. It is idempotent.
func (m *Manager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown()
}

func (m *Manager) teardown() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return
	}

	s.cancel()
	s.closeConn()
	<-s.done

	m.mu.Lock()
	if m.session == nil {
		m.status = idleStatus()
	}
	m.mu.Unlock()

	m.logger.WithField("job_id", s.jobID).Debug("Realtime session closed")
}

func (m *Manager) run(s *session) {
	defer close(s.done)
	defer close(s.events)

	if m.config.WebSocketEnabled {
		switch m.runWebSocket(s) {
		case wsTerminal, wsCancelled:
			return
		case wsClosed:
			// the server hung up without a terminal frame; polling settles the outcome
			if !m.config.PollingEnabled {
				return
			}
		}
	}
	if s.ctx.Err() != nil {
		return
	}

	if m.config.PollingEnabled {
		m.runPolling(s)
		return
	}

	m.updateStatus(s, func(st *ChannelStatus) {
		st.State = StateError
	})
	m.emit(s, Event{
		Type:    EventError,
		JobID:   s.jobID,
		Message: "Lost connection to the analysis service.",
		Source:  ModeWebSocket,
	})
}

// emit delivers ev unless the session is being torn down.
func (m *Manager) emit(s *session, ev Event) bool {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = m.now()
	}
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// updateStatus mutates the channel status of s and publishes it.
func (m *Manager) updateStatus(s *session, mutate func(*ChannelStatus)) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	mutate(&m.status)
	st := m.status
	m.mu.Unlock()

	m.emit(s, Event{Type: EventChannel, JobID: s.jobID, Channel: &st, Source: st.Mode})
}

func (m *Manager) reconnectDelay(attempt int) time.Duration {
	d := time.Duration(float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt)))
	if d > m.config.MaxDelay || d <= 0 {
		d = m.config.MaxDelay
	}
	return d
}

func (m *Manager) runWebSocket(s *session) wsOutcome {
	log := m.logger.WithField("job_id", s.jobID)

	wsURL, err := m.config.ProgressURL(s.jobID)
	if err != nil {
		log.WithError(err).Warn("Cannot build websocket URL, falling back")
		return wsExhausted
	}

	attempt := 0
	for {
		m.updateStatus(s, func(st *ChannelStatus) {
			st.State = StateConnecting
			st.Mode = ModeWebSocket
		})

		conn, err := m.dialer.Dial(s.ctx, wsURL)
		if err != nil {
			if s.ctx.Err() != nil {
				return wsCancelled
			}
			log.WithError(err).WithField("attempt", attempt).Warn("Websocket dial failed")
			m.updateStatus(s, func(st *ChannelStatus) {
				st.State = StateError
				st.LastError = err.Error()
			})
		} else {
			s.setConn(conn)
			attempt = 0
			m.updateStatus(s, func(st *ChannelStatus) {
				st.State = StateConnected
				st.ReconnectAttempts = 0
				st.LastError = ""
			})
			log.Debug("Websocket connected")

			stop := context.AfterFunc(s.ctx, s.closeConn)
			outcome, readErr := m.readLoop(s, conn)
			stop()
			s.closeConn()

			switch outcome {
			case wsTerminal, wsCancelled:
				return outcome
			case wsClosed:
				log.Info("Websocket closed normally")
				m.updateStatus(s, func(st *ChannelStatus) {
					st.State = StateDisconnected
				})
				return wsClosed
			}

			if s.ctx.Err() != nil {
				return wsCancelled
			}
			log.WithError(readErr).Warn("Websocket closed abnormally")
			m.updateStatus(s, func(st *ChannelStatus) {
				st.State = StateError
				st.LastError = readErr.Error()
			})
		}

		if attempt >= m.config.MaxRetries {
			log.WithField("max_retries", m.config.MaxRetries).Warn("Websocket reconnect budget exhausted")
			return wsExhausted
		}

		delay := m.reconnectDelay(attempt)
		attempt++
		m.updateStatus(s, func(st *ChannelStatus) {
			st.ReconnectAttempts = attempt
		})
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": delay.String(),
		}).Info("Scheduling websocket reconnect")

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return wsCancelled
		case <-timer.C:
		}
	}
}

// readLoop forwards frames until the connection ends. The returned error
// is only meaningful for abnormal closes.
func (m *Manager) readLoop(s *session, conn Conn) (wsOutcome, error) {
	log := m.logger.WithField("job_id", s.jobID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return wsCancelled, err
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return wsClosed, err
			}
			return wsAbnormal, err
		}

		ev, err := ParseMessage(data)
		if err != nil {
			log.WithError(err).Warn("Dropping malformed websocket message")
			continue
		}
		if ev.JobID != "" && ev.JobID != s.jobID {
			log.WithField("stale_job_id", ev.JobID).Debug("Dropping message for another job")
			continue
		}
		ev.JobID = s.jobID
		ev.Source = ModeWebSocket

		log.WithField("type", ev.Type).Debug("Websocket event received")

		if !m.emit(s, ev) {
			return wsCancelled, s.ctx.Err()
		}
		if ev.Terminal() {
			return wsTerminal, nil
		}
	}
}

func (m *Manager) runPolling(s *session) {
	log := m.logger.WithField("job_id", s.jobID)
	log.Info("Polling job status")

	m.updateStatus(s, func(st *ChannelStatus) {
		st.Mode = ModePolling
		st.State = StateConnecting
		st.PollCount = 0
	})

	var prev analysis.JobStatus
	for polls := 1; polls <= m.config.MaxPolls; polls++ {
		status, err := m.fetcher.GetStatus(s.ctx, s.jobID)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			c := errclass.Classify(err)
			if !c.Retryable {
				log.WithError(err).Error("Polling stopped by a non-retryable error")
				m.updateStatus(s, func(st *ChannelStatus) {
					st.State = StateError
					st.PollCount = polls
					st.LastError = err.Error()
				})
				m.emit(s, Event{Type: EventError, JobID: s.jobID, Message: c.UserMessage, Source: ModePolling})
				return
			}
			log.WithError(err).WithField("poll", polls).Warn("Status poll failed")
			m.updateStatus(s, func(st *ChannelStatus) {
				st.State = StateError
				st.PollCount = polls
				st.LastError = err.Error()
			})
		} else {
			m.updateStatus(s, func(st *ChannelStatus) {
				st.State = StateConnected
				st.PollCount = polls
				st.LastError = ""
			})
			if status.JobID == "" {
				status.JobID = s.jobID
			}
			for _, ev := range TranslateStatus(status, prev) {
				ev.Source = ModePolling
				if !m.emit(s, ev) {
					return
				}
				if ev.Terminal() {
					return
				}
			}
			prev = status.Status
		}

		if polls == m.config.MaxPolls {
			break
		}
		timer := time.NewTimer(m.config.PollInterval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	log.WithField("max_polls", m.config.MaxPolls).Error("Polling budget exhausted")
	m.updateStatus(s, func(st *ChannelStatus) {
		st.State = StateError
		st.LastError = ErrPollBudgetExhausted.Error()
	})
	m.emit(s, Event{
		Type:    EventError,
		JobID:   s.jobID,
		Message: "The analysis did not finish in time. Please try again.",
		Source:  ModePolling,
	})
}

// ErrPollBudgetExhausted is recorded when polling gives up.
var ErrPollBudgetExhausted = errors.New("polling budget exhausted")
