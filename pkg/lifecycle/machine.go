// Package lifecycle drives one keyword analysis job from submission to a
// terminal state. Control methods (Start, Cancel, Pause, Resume, Retry,
// Reset) call the analysis API; realtime events are folded into a Snapshot
// by the pure Reduce function. Every mutation happens under a single mutex
// and is checked against the session generation, so results of superseded
// calls and events of superseded sessions are dropped.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
	"github.com/sirupsen/logrus"
)

// DefaultEstimateInterval is how often the local estimate is refreshed.
const DefaultEstimateInterval = time.Second

// abandonedCancelTimeout bounds the best-effort cancel of an abandoned job.
const abandonedCancelTimeout = 10 * time.Second

// API is the part of the analysis client the machine needs.
type API interface {
	CreateJob(ctx context.Context, req analysis.Request) (*analysis.JobCreated, error)
	Cancel(ctx context.Context, jobID string) (*analysis.ControlResponse, error)
	Pause(ctx context.Context, jobID string) (*analysis.ControlResponse, error)
	Resume(ctx context.Context, jobID string) (*analysis.ControlResponse, error)
}

// Channel is the realtime source. *realtime.Manager satisfies it.
type Channel interface {
	Connect(ctx context.Context, jobID string) (<-chan realtime.Event, error)
	Close()
}

// Config controls optional machine behaviour.
type Config struct {
	// AutoRetry schedules one Retry after a retryable failure
	AutoRetry bool

	// EstimateInterval is the refresh period of the local estimate
	EstimateInterval time.Duration

	// Tracker records every classified failure when set
	Tracker *errclass.Tracker

	Logger *logrus.Logger
}

// Machine is safe for concurrent use.
type Machine struct {
	api     API
	channel Channel
	config  Config
	logger  *logrus.Logger
	now     func() time.Time

	mu    sync.Mutex
	state Snapshot
	// gen identifies the current session; bumped by Start, Reset and teardown
	gen           uint64
	sessionCancel context.CancelFunc
	pumpDone      chan struct{}
	retryTimer    *time.Timer
	autoRetry     bool
	lastErrorID   string
	subs          map[int]chan Snapshot
	nextSub       int
	closed        bool
}

// NewMachine creates an idle machine.
func NewMachine(api API, channel Channel, config Config) *Machine {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.EstimateInterval <= 0 {
		config.EstimateInterval = DefaultEstimateInterval
	}
	return &Machine{
		api:     api,
		channel: channel,
		config:  config,
		logger:  config.Logger,
		now:     time.Now,
		state:   IdleSnapshot(),
		subs:    make(map[int]chan Snapshot),
	}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Finished reports whether the job has ended and no automatic retry is
// pending.
func (m *Machine) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status.Terminal() && m.retryTimer == nil
}

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow readers only see the most recent one. The returned func
// unsubscribes and closes the channel.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state.Clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
}

// Start submits req and begins tracking the created job.
func (m *Machine) Start(ctx context.Context, req analysis.Request) error {
	return m.start(ctx, req, 0, true)
}

func (m *Machine) start(ctx context.Context, req analysis.Request, retries int, armAutoRetry bool) error {
	if err := req.Validate(); err != nil {
		return err
	}
	req = req.Normalize()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Status.Live() {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}

	m.stopSessionLocked()
	m.gen++
	gen := m.gen
	if armAutoRetry {
		m.autoRetry = m.config.AutoRetry
	}

	now := m.now()
	m.state = IdleSnapshot()
	m.state.Status = StatusStarting
	m.state.Request = &req
	m.state.CanCancel = true
	m.state.Statistics = Statistics{StartTime: now, Retries: retries}
	m.publishLocked()
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"keyword": req.Keyword,
		"retries": retries,
	})
	log.Info("Starting analysis")

	created, err := m.api.CreateJob(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.state.Status != StatusStarting {
		log.Warn("Start abandoned by a concurrent reset or cancel")
		if err == nil {
			go m.cancelAbandoned(created.JobID)
		}
		return ErrStartAborted
	}

	if err != nil {
		jobErr := newJobError(OpStart, err)
		m.failLocked(jobErr)
		log.WithError(err).Error("Failed to start analysis")
		m.publishLocked()
		return jobErr
	}

	if m.lastErrorID != "" && m.config.Tracker != nil {
		m.config.Tracker.Resolve(m.lastErrorID)
		m.lastErrorID = ""
	}

	now = m.now()
	m.state.JobID = created.JobID
	m.state.Status = StatusRunning
	m.state.Progress = newProgress(now)
	m.state.Progress.Timing.StartTime = m.state.Statistics.StartTime
	m.state.Progress.Timing.CurrentStageStartTime = now
	m.state.CanCancel, m.state.CanPause, m.state.CanResume = true, true, false

	log.WithField("job_id", created.JobID).Info("Analysis running")

	if err := m.startSessionLocked(gen, created.JobID); err != nil {
		jobErr := newJobError(OpStart, err)
		m.failLocked(jobErr)
		m.publishLocked()
		return jobErr
	}
	m.publishLocked()
	return nil
}

func (m *Machine) cancelAbandoned(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), abandonedCancelTimeout)
	defer cancel()
	if _, err := m.api.Cancel(ctx, jobID); err != nil {
		m.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to cancel abandoned job")
	}
}

// Cancel stops the job. It is a no-op unless the job can be cancelled.
// When the cancel request fails the error is stored and returned, but the
// job is still torn down locally.
func (m *Machine) Cancel(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.CanCancel {
		m.mu.Unlock()
		return nil
	}

	if m.state.Status == StatusStarting {
		// Nothing exists server side yet; the pending Start will abandon
		// and cancel the job it creates.
		m.cancelLocked()
		m.publishLocked()
		m.mu.Unlock()
		m.logger.Info("Analysis cancelled before the job was created")
		return nil
	}

	gen := m.gen
	jobID := m.state.JobID
	m.mu.Unlock()

	_, err := m.api.Cancel(ctx, jobID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.state.JobID != jobID || m.state.Status.Terminal() {
		return err
	}

	m.cancelLocked()
	log := m.logger.WithField("job_id", jobID)
	if err != nil {
		jobErr := newJobError(OpCancel, err)
		m.state.Error = jobErr
		m.trackLocked(jobErr)
		log.WithError(err).Warn("Cancel request failed, stopped tracking locally")
		m.publishLocked()
		return jobErr
	}
	log.Info("Analysis cancelled")
	m.publishLocked()
	return nil
}

// Pause pauses a running job. Pausing a paused job is a no-op.
func (m *Machine) Pause(ctx context.Context) error {
	return m.control(ctx, OpPause, StatusRunning, StatusPaused, m.api.Pause)
}

// Resume resumes a paused job. Resuming a running job is a no-op.
func (m *Machine) Resume(ctx context.Context) error {
	return m.control(ctx, OpResume, StatusPaused, StatusRunning, m.api.Resume)
}

func (m *Machine) control(
	ctx context.Context,
	op string,
	from, to Status,
	call func(context.Context, string) (*analysis.ControlResponse, error),
) error {
	m.mu.Lock()
	switch m.state.Status {
	case to:
		m.mu.Unlock()
		return nil
	case from:
	default:
		m.mu.Unlock()
		return ErrInvalidState
	}
	gen := m.gen
	jobID := m.state.JobID
	m.mu.Unlock()

	_, err := call(ctx, jobID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.state.JobID != jobID {
		return err
	}

	log := m.logger.WithFields(logrus.Fields{"job_id": jobID, "op": op})
	if err != nil {
		jobErr := newJobError(op, err)
		m.state.Error = jobErr
		m.trackLocked(jobErr)
		log.WithError(err).Warn("Job control request failed")
		m.publishLocked()
		return jobErr
	}

	// The channel may have confirmed the transition already.
	if m.state.Status == from {
		m.state.Status = to
		m.state.CanCancel = true
		m.state.CanPause = to == StatusRunning
		m.state.CanResume = to == StatusPaused
	}
	m.state.Error = nil
	log.Info("Job control applied")
	m.publishLocked()
	return nil
}

// Retry starts a new job with the last submitted request. Progress of the
// previous attempt is not preserved.
func (m *Machine) Retry(ctx context.Context) error {
	return m.retry(ctx, true)
}

func (m *Machine) retry(ctx context.Context, armAutoRetry bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Request == nil {
		m.mu.Unlock()
		return ErrNothingToRetry
	}
	if m.state.Status.Live() {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	req := *m.state.Request
	retries := m.state.Statistics.Retries + 1
	m.resetLocked()
	m.publishLocked()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"keyword": req.Keyword,
		"retries": retries,
	}).Info("Retrying analysis")

	return m.start(ctx, req, retries, armAutoRetry)
}

// Reset tears everything down and returns to idle. It is idempotent.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.publishLocked()
}

// Close resets the machine, closes every subscription and waits for the
// event pump to stop. Later calls to Start and Retry fail with ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.resetLocked()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	done := m.pumpDone
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (m *Machine) resetLocked() {
	m.gen++
	m.stopSessionLocked()
	m.state = IdleSnapshot()
	m.autoRetry = false
}

// failLocked moves to error with jobErr and tears the session down.
func (m *Machine) failLocked(jobErr *JobError) {
	m.state.Status = StatusError
	m.state.Error = jobErr
	m.state.CanCancel, m.state.CanPause, m.state.CanResume = false, false, false
	m.state.Statistics.EndTime = m.now()
	m.trackLocked(jobErr)
	m.teardownLocked()
	m.scheduleAutoRetryLocked(jobErr.Classification)
}

func (m *Machine) cancelLocked() {
	m.state.Status = StatusCancelled
	m.state.CanCancel, m.state.CanPause, m.state.CanResume = false, false, false
	m.state.Statistics.EndTime = m.now()
	if m.state.Progress != nil {
		m.state.Progress.Timing.EstimatedRemaining = 0
	}
	m.teardownLocked()
}

func (m *Machine) trackLocked(jobErr *JobError) {
	if m.config.Tracker == nil {
		return
	}
	id, _ := m.config.Tracker.TrackClassification(jobErr.Classification)
	m.lastErrorID = id
}

// teardownLocked stops the realtime session but keeps the snapshot.
func (m *Machine) teardownLocked() {
	m.stopSessionLocked()
	m.gen++
	m.state.Channel = IdleSnapshot().Channel
}

func (m *Machine) stopSessionLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.sessionCancel != nil {
		m.sessionCancel()
		m.sessionCancel = nil
		m.channel.Close()
	}
}

func (m *Machine) startSessionLocked(gen uint64, jobID string) error {
	ctx, cancel := context.WithCancel(context.Background())
	events, err := m.channel.Connect(ctx, jobID)
	if err != nil {
		cancel()
		return err
	}
	m.sessionCancel = cancel

	done := make(chan struct{})
	m.pumpDone = done
	go m.pump(ctx, gen, events, done)
	go m.estimate(ctx, gen)
	return nil
}

// pump folds channel events into the state until the session ends.
func (m *Machine) pump(ctx context.Context, gen uint64, events <-chan realtime.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.apply(gen, ev)
		}
	}
}

func (m *Machine) apply(gen uint64, ev realtime.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return
	}

	prev := m.state.Status
	m.state = Reduce(m.state, ev, m.now())

	if ev.Type != realtime.EventChannel {
		m.logger.WithFields(logrus.Fields{
			"job_id": m.state.JobID,
			"event":  ev.Type,
			"source": ev.Source,
			"status": m.state.Status,
		}).Debug("Event applied")
	}

	if !prev.Terminal() && m.state.Status.Terminal() {
		m.logger.WithFields(logrus.Fields{
			"job_id": m.state.JobID,
			"status": m.state.Status,
		}).Info("Analysis finished")
		m.teardownLocked()
		if m.state.Status == StatusError && m.state.Error != nil {
			m.trackLocked(m.state.Error)
			m.scheduleAutoRetryLocked(m.state.Error.Classification)
		}
	}
	m.publishLocked()
}

// estimate refreshes the local estimate until the first server event.
func (m *Machine) estimate(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(m.config.EstimateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.gen != gen {
				m.mu.Unlock()
				return
			}
			p := m.state.Progress
			if m.state.Status == StatusRunning && p != nil && p.Estimated {
				next := Estimate(*p, m.now())
				m.state.Progress = &next
				m.publishLocked()
			}
			m.mu.Unlock()
		}
	}
}

func (m *Machine) scheduleAutoRetryLocked(c errclass.Classification) {
	if !m.autoRetry || !c.Retryable {
		return
	}
	m.autoRetry = false
	gen := m.gen

	m.logger.WithField("delay", c.RetryDelay.String()).Info("Scheduling automatic retry")
	m.retryTimer = time.AfterFunc(c.RetryDelay, func() {
		m.mu.Lock()
		stale := m.gen != gen || m.state.Status != StatusError
		m.mu.Unlock()
		if stale {
			return
		}
		if err := m.retry(context.Background(), false); err != nil {
			m.logger.WithError(err).Warn("Automatic retry failed")
		}
	})
}

// publishLocked pushes the current snapshot to subscribers, replacing any
// snapshot they have not read yet.
func (m *Machine) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := m.state.Clone()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
