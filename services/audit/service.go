// Package audit queues approval audit records and persists them in the
// background so admin actions never wait on the audit database.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/repositories"
	"go.uber.org/zap"
)

// Audit result labels
const (
	ResultPersisted = "persisted"
	ResultFailed    = "failed"
	ResultDropped   = "dropped"
	ResultLogged    = "logged"
)

var (
	// ErrNotStarted is returned when events are queued before Start or after Stop
	ErrNotStarted = errors.New("audit service not started")
	// ErrBufferFull is returned when the queue cannot take another event
	ErrBufferFull = errors.New("audit event buffer full")
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo    repositories.AuditRepository
	metrics      *observability.Metrics
	logger       *zap.Logger
	eventChan    chan *AuditEvent
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	mu           sync.RWMutex
	started      bool
	stopped      bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // Size of the event buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Per-insert timeout
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, metrics *observability.Metrics, logger *zap.Logger, config Config) *AuditService {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	return &AuditService{
		auditRepo:    auditRepo,
		metrics:      metrics,
		logger:       logger,
		eventChan:    make(chan *AuditEvent, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	s.mu.Lock()
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Record queues an approval audit entry. It never blocks the caller; an entry
// that cannot be queued is written to the log instead.
func (s *AuditService) Record(_ context.Context, log *models.AuditLog) {
	if err := s.LogEvent(&AuditEvent{Log: log}); err != nil {
		s.metrics.RecordAudit(ResultDropped)
		s.logger.Warn("audit event dropped",
			append(logFields(log), zap.Error(err))...)
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.metrics.RecordAudit(ResultFailed)
			s.logger.Error("failed to process audit event",
				append(logFields(event.Log), zap.Int("worker_id", id), zap.Error(err))...)
			continue
		}
		s.metrics.RecordAudit(ResultPersisted)
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent writes one event with its own timeout so that queued events
// still drain after Stop has been called.
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// LogAuditor writes audit entries to the application log. It is used when no
// audit database is configured.
type LogAuditor struct {
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLogAuditor creates a LogAuditor
func NewLogAuditor(metrics *observability.Metrics, logger *zap.Logger) *LogAuditor {
	return &LogAuditor{metrics: metrics, logger: logger}
}

// Record logs the entry
func (a *LogAuditor) Record(ctx context.Context, log *models.AuditLog) {
	a.metrics.RecordAudit(ResultLogged)
	observability.WithRequest(ctx, a.logger).Info("approval audit", logFields(log)...)
}

func logFields(log *models.AuditLog) []zap.Field {
	fields := []zap.Field{
		zap.String("audit_id", log.ID.String()),
		zap.String("action", string(log.Action)),
		zap.String("outcome", string(log.Outcome)),
		zap.String("actor_id", log.ActorID),
		zap.String("target_user_id", log.TargetUserID),
	}
	if log.Role != nil {
		fields = append(fields, zap.String("role", *log.Role))
	}
	if log.ErrorMessage != nil {
		fields = append(fields, zap.String("error_message", *log.ErrorMessage))
	}
	return fields
}
