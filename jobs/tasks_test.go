package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/brodesk/brodesk/internal/jobs"
)

type captureMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *captureMailer) Send(_ context.Context, p SendEmailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, p)
	return nil
}

func newEmailTask(t *testing.T, p SendEmailPayload) *asynq.Task {
	t.Helper()
	task, err := NewSendEmailTask(p)
	require.NoError(t, err)
	return task
}

func TestEmailHandlerDelivers(t *testing.T) {
	mailer := &captureMailer{}
	h := NewEmailHandler(mailer, jobmetrics.NewMetrics(prometheus.NewRegistry()), nil)

	payload := SendEmailPayload{To: "ravi@x.com", Subject: "BroDesk: New Complaint Assigned", Body: "hello"}
	require.NoError(t, h.ProcessTask(context.Background(), newEmailTask(t, payload)))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, payload, mailer.sent[0])
}

func TestEmailHandlerSkipsRetryOnBadPayload(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	h := NewEmailHandler(&captureMailer{}, metrics, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), newEmailTask(t, SendEmailPayload{Subject: "x"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	count, err := testutil.GatherAndCount(reg, "brodesk_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmailHandlerPropagatesMailerError(t *testing.T) {
	h := NewEmailHandler(&captureMailer{err: errors.New("relay down")}, nil, nil)
	err := h.ProcessTask(context.Background(), newEmailTask(t, SendEmailPayload{To: "a@b.co"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSendEmailTaskPayload(t *testing.T) {
	task := newEmailTask(t, SendEmailPayload{To: "a@b.co", Subject: "s", Body: "b"})
	assert.Equal(t, TaskTypeSendEmail, task.Type())
	var decoded SendEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "a@b.co", decoded.To)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, http.StatusOK, 3},
		{"queue missing", stubInspector{err: asynq.ErrQueueNotFound}, http.StatusOK, 0},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(tc.inspector, nil)
			rec := httptest.NewRecorder()
			h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}

type stubPurger struct {
	retention time.Duration
	removed   int64
	err       error
}

func (p *stubPurger) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	p.retention = olderThan
	return p.removed, p.err
}

func TestPurgeHandler(t *testing.T) {
	purger := &stubPurger{removed: 4}
	h := NewPurgeHandler(purger, jobmetrics.NewMetrics(prometheus.NewRegistry()), nil)

	task, err := NewIdempotencyPurgeTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, 24*time.Hour, purger.retention)

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeIdempotencyPurge, nil)))
	assert.Equal(t, DefaultIdempotencyRetention, purger.retention)

	purger.err = errors.New("pool closed")
	assert.Error(t, h.ProcessTask(context.Background(), task))

	err = h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeIdempotencyPurge, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
