// Package devserver is an in-process stand-in for the analysis service. It
// simulates the three stage pipeline with pause, resume and cancel support
// and serves the same HTTP and websocket API, so the client can be
// exercised end to end without the real backend.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Default simulation values
const (
	DefaultStageDuration  = 4 * time.Second
	DefaultTickInterval   = 250 * time.Millisecond
	DefaultRequestTimeout = 60 * time.Second

	writeWait = 5 * time.Second
)

// Config controls the simulation.
type Config struct {
	// StageDuration is how long each of the three stages takes
	StageDuration time.Duration
	TickInterval  time.Duration

	// FailStage makes every job fail when it reaches that stage; 0 disables
	FailStage int

	// Reports builds the final report; nil uses a generator without LLM
	Reports *report.Generator

	// Registry receives the server metrics and backs /metrics; nil creates one
	Registry *prometheus.Registry

	Logger *logrus.Logger
}

func (c *Config) Validate() error {
	if c.StageDuration <= 0 {
		c.StageDuration = DefaultStageDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.TickInterval > c.StageDuration {
		return fmt.Errorf("devserver: tick interval %s exceeds stage duration %s", c.TickInterval, c.StageDuration)
	}
	if c.FailStage < 0 || c.FailStage > realtime.StageCount {
		return fmt.Errorf("devserver: fail stage must be between 0 and %d", realtime.StageCount)
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Reports == nil {
		c.Reports = report.NewGenerator(nil, c.Logger)
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	return nil
}

// Server holds the simulated jobs.
type Server struct {
	config   *Config
	logger   *logrus.Logger
	metrics  *metrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
	wg     sync.WaitGroup
	done   chan struct{}
}

func New(config *Config) (*Server, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Server{
		config:  config,
		logger:  config.Logger,
		metrics: newMetrics(config.Registry),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		jobs: make(map[string]*job),
		done: make(chan struct{}),
	}, nil
}

// Router returns the HTTP handler of the service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/ws/progress/{id}", s.handleProgressSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(DefaultRequestTimeout))

		r.Get("/health", s.handleHealth)
		r.Post("/analysis/async", s.handleCreateJob)
		r.Route("/analysis/{id}", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/cancel", s.handleCancel)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
		})
	})

	return r
}

// Close cancels every running job and waits for the simulations to stop.
// Open websockets are closed with a going away frame.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	s.wg.Wait()
}

func (s *Server) lookup(r *http.Request) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[chi.URLParam(r, "id")]
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	active := 0
	for _, j := range s.jobs {
		j.mu.Lock()
		if !j.status.Terminal() {
			active++
		}
		j.mu.Unlock()
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"details":   map[string]any{"active_jobs": active},
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err)
		return
	}
	req = req.Normalize()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		writeErr(w, http.StatusServiceUnavailable, errors.New("server is shutting down"))
		return
	}
	j := newJob(uuid.NewString(), req, time.Now())
	s.jobs[j.id] = j
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.jobsCreated.Inc()
	s.metrics.activeJobs.Inc()
	go s.simulate(j)

	s.logger.WithFields(logrus.Fields{
		"job_id":  j.id,
		"keyword": req.Keyword,
	}).Info("Job created")

	writeJSON(w, http.StatusOK, analysis.JobCreated{
		JobID:     j.id,
		Status:    analysis.JobStatusPending,
		Message:   "Analysis started",
		StatusURL: fmt.Sprintf("/api/analysis/%s/status", j.id),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	j := s.lookup(r)
	if j == nil {
		writeErr(w, http.StatusNotFound, errors.New("job not found"))
		return
	}
	j.mu.Lock()
	st := j.statusLocked()
	j.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	j := s.lookup(r)
	if j == nil {
		writeErr(w, http.StatusNotFound, errors.New("job not found"))
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		writeErr(w, http.StatusConflict, fmt.Errorf("job already %s", j.status))
		return
	}
	j.status = analysis.JobStatusCancelled
	j.finishLocked()
	s.metrics.finished(j.status)

	s.logger.WithField("job_id", j.id).Info("Job cancelled")
	writeJSON(w, http.StatusOK, analysis.ControlResponse{Status: string(j.status), Message: "Analysis cancelled"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, analysis.JobStatusProcessing, analysis.JobStatusPaused, realtime.EventPaused, "Analysis paused")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, analysis.JobStatusPaused, analysis.JobStatusProcessing, realtime.EventResumed, "Analysis resumed")
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, from, to analysis.JobStatus, ev realtime.EventType, text string) {
	j := s.lookup(r)
	if j == nil {
		writeErr(w, http.StatusNotFound, errors.New("job not found"))
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != from {
		writeErr(w, http.StatusConflict, fmt.Errorf("job is %s", j.status))
		return
	}
	j.status = to
	j.broadcastLocked(message{Type: ev, JobID: j.id, Data: textData{Message: text}})

	s.logger.WithFields(logrus.Fields{
		"job_id": j.id,
		"status": to,
	}).Info("Job status changed")
	writeJSON(w, http.StatusOK, analysis.ControlResponse{Status: string(to), Message: text})
}

func (s *Server) handleProgressSocket(w http.ResponseWriter, r *http.Request) {
	j := s.lookup(r)
	if j == nil {
		writeErr(w, http.StatusNotFound, errors.New("job not found"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade the websocket")
		return
	}
	defer conn.Close()

	s.metrics.wsConnections.Inc()
	defer s.metrics.wsConnections.Dec()

	log := s.logger.WithField("job_id", j.id)
	log.Debug("Websocket client connected")

	initial, updates, unsubscribe := j.subscribe(s.config.StageDuration)
	defer unsubscribe()

	// The client never sends anything; reading only detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg message) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("Failed to write websocket frame")
			return false
		}
		return true
	}
	closeWith := func(code int, text string) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	}

	for _, msg := range initial {
		if !send(msg) {
			return
		}
	}

	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				closeWith(websocket.CloseNormalClosure, "job finished")
				return
			}
			if !send(msg) {
				return
			}
		case <-gone:
			log.Debug("Websocket client disconnected")
			return
		case <-s.done:
			closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

// simulate advances j until it finishes or is cancelled.
func (s *Server) simulate(j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	step := float64(s.config.TickInterval) / float64(s.config.StageDuration) * 100

	for {
		select {
		case <-j.ctx.Done():
			s.abandon(j)
			return
		case <-ticker.C:
		}

		j.mu.Lock()
		if j.status != analysis.JobStatusProcessing {
			j.mu.Unlock()
			continue
		}

		j.stageProgress += step
		if j.stageProgress >= 100 {
			if j.stage == s.config.FailStage {
				j.status = analysis.JobStatusFailed
				j.errMsg = fmt.Sprintf("%s failed", stageMessages[j.stage-1])
				j.finishLocked()
				s.metrics.finished(j.status)
				j.mu.Unlock()
				s.logger.WithField("job_id", j.id).Warn("Simulated job failure")
				return
			}
			if j.stage < realtime.StageCount {
				j.stage++
				j.stageProgress = 0
			} else {
				j.stageProgress = 100
				j.mu.Unlock()
				s.complete(j)
				return
			}
		}
		j.broadcastLocked(j.progressLocked(s.config.StageDuration))
		j.mu.Unlock()
	}
}

// complete builds the report outside the job lock and then finishes j.
func (s *Server) complete(j *job) {
	serp := j.serpSummary()
	rep, err := s.config.Reports.Generate(j.ctx, j.req, serp)

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.Terminal() {
		return
	}
	if err != nil {
		j.status = analysis.JobStatusFailed
		j.errMsg = fmt.Sprintf("report generation failed: %v", err)
	} else {
		now := time.Now()
		opts := j.req.Options
		j.status = analysis.JobStatusCompleted
		j.result = &analysis.Result{
			Status:         "success",
			AnalysisReport: rep.Markdown,
			Metadata: analysis.Metadata{
				Keyword:        j.req.Keyword,
				Audience:       j.req.Audience,
				ProcessingTime: now.Sub(j.created).Seconds(),
				TokenUsage:     rep.TokenUsage,
				Timestamp:      now.UTC().Format(time.RFC3339),
				Options:        &opts,
			},
			SerpSummary: &serp,
		}
	}
	j.finishLocked()
	s.metrics.finished(j.status)

	s.logger.WithFields(logrus.Fields{
		"job_id": j.id,
		"status": j.status,
	}).Info("Job finished")
}

// abandon marks a job still running at shutdown as failed.
func (s *Server) abandon(j *job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = analysis.JobStatusFailed
	j.errMsg = "server shutting down"
	j.finishLocked()
	s.metrics.finished(j.status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"duration":   time.Since(start).String(),
					"request_id": middleware.GetReqID(r.Context()),
				}).Debug("Request served")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Serve runs the server on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Development backend listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
