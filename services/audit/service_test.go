package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/kudos-portal/internal/observability"
	"github.com/upb/kudos-portal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.insertedLogs = append(m.insertedLogs, log)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockAuditRepository) ListByTargetUser(ctx context.Context, targetUserID string, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, targetUserID, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.insertedLogs...)
}

func newEntry(target string) *models.AuditLog {
	return models.NewAuditLog("admin-1", target, models.AuditActionUserApproved)
}

func newService(repo *MockAuditRepository, cfg Config) (*AuditService, *observability.Metrics) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewAuditService(repo, metrics, zap.NewNop(), cfg), metrics
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service, _ := newService(mockRepo, Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)
	assert.ErrorIs(t, service.Stop(time.Second), ErrNotStarted)
	assert.ErrorIs(t, service.LogEvent(&AuditEvent{Log: newEntry("u1")}), ErrNotStarted)
}

func TestAuditService_DefaultsApplied(t *testing.T) {
	service, _ := newService(new(MockAuditRepository), Config{})
	stats := service.GetStats()
	assert.Equal(t, DefaultConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultConfig().WorkerCount, stats.WorkerCount)
	assert.False(t, stats.Started)
}

func TestAuditService_LogEventNotStarted(t *testing.T) {
	service, _ := newService(new(MockAuditRepository), DefaultConfig())
	assert.ErrorIs(t, service.LogEvent(&AuditEvent{Log: newEntry("u1")}), ErrNotStarted)
}

func TestAuditService_Record(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service, metrics := newService(mockRepo, Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	entry := newEntry("u1").WithRole(models.RoleLead)
	service.Record(context.Background(), entry)

	require.Eventually(t, func() bool { return len(mockRepo.GetInsertedLogs()) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, service.Stop(5*time.Second))

	inserted := mockRepo.GetInsertedLogs()
	assert.Same(t, entry, inserted[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuditEvents.WithLabelValues(ResultPersisted)))
}

func TestAuditService_ConcurrentRecord(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service, _ := newService(mockRepo, Config{BufferSize: 1000, WorkerCount: 4})
	require.NoError(t, service.Start())

	goroutineCount := 10
	eventsPerGoroutine := 10
	var wg sync.WaitGroup
	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				service.Record(context.Background(), newEntry("u1"))
			}
		}()
	}
	wg.Wait()

	// Stop drains the queue
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.GetInsertedLogs(), goroutineCount*eventsPerGoroutine)
}

func TestAuditService_InsertFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	service := NewAuditService(mockRepo, metrics, zap.New(core), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	service.Record(context.Background(), newEntry("u9"))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuditEvents.WithLabelValues(ResultFailed)))
	require.Equal(t, 1, logs.FilterMessage("failed to process audit event").Len())
	assert.Equal(t, "u9", logs.All()[0].ContextMap()["target_user_id"])
}

func TestAuditService_BufferFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	inFlight := make(chan struct{})
	var once sync.Once
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		once.Do(func() { close(inFlight) })
		<-release
	})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	service := NewAuditService(mockRepo, metrics, zap.New(core), Config{BufferSize: 2, WorkerCount: 1})
	require.NoError(t, service.Start())

	// Park the only worker so the buffer cannot drain
	require.NoError(t, service.LogEvent(&AuditEvent{Log: newEntry("first")}))
	<-inFlight

	successCount := 1
	for i := 0; i < 9; i++ {
		if err := service.LogEvent(&AuditEvent{Log: newEntry("u1")}); err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, ErrBufferFull)
		}
	}
	assert.Equal(t, 3, successCount)

	service.Record(context.Background(), newEntry("dropped"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuditEvents.WithLabelValues(ResultDropped)))
	assert.Equal(t, 1, logs.FilterMessage("audit event dropped").Len())

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.GetInsertedLogs(), successCount)
}

func TestLogAuditor_Record(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	auditor := NewLogAuditor(metrics, zap.New(core))

	entry := newEntry("u2").WithRole(models.RoleAdmin).WithError(errors.New("conflict"))
	auditor.Record(context.Background(), entry)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "approval audit", logs.All()[0].Message)
	assert.Equal(t, "u2", fields["target_user_id"])
	assert.Equal(t, "ADMIN", fields["role"])
	assert.Equal(t, "failure", fields["outcome"])
	assert.Equal(t, "conflict", fields["error_message"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuditEvents.WithLabelValues(ResultLogged)))
}
