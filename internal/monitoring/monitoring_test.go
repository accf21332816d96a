package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

type fakeRuns struct {
	runs []model.Run
	err  error
}

func (f *fakeRuns) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return f.runs, f.err
}

func stats(leads, classified, errs int, cost float64) *model.RunStats {
	return &model.RunStats{Leads: leads, ReviewsClassified: classified, ClassifierErrors: errs, EstimatedCostUSD: cost}
}

func TestCollector_EmptyStore(t *testing.T) {
	snap, err := NewCollector(&fakeRuns{}).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	runs := &fakeRuns{runs: []model.Run{
		{ID: "1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1 * time.Hour), Stats: stats(2, 40, 0, 0.10)},
		{ID: "2", Status: model.RunStatusStopped, CreatedAt: now.Add(-2 * time.Hour), Stats: stats(1, 10, 1, 0.05)},
		{ID: "3", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour), Stats: &model.RunStats{Challenges: 2}},
		{ID: "4", Status: model.RunStatusRunning, CreatedAt: now.Add(-30 * time.Minute)},
		// Outside lookback window.
		{ID: "5", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour), Stats: stats(9, 9, 9, 9)},
	}}

	snap, err := NewCollector(runs).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsStopped)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsBlocked)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001)
	assert.Equal(t, 3, snap.Leads)
	assert.Equal(t, 50, snap.ReviewsClassified)
	assert.Equal(t, 1, snap.ClassifierErrors)
	assert.InDelta(t, 0.15, snap.CostUSD, 0.0001)
}

func TestCollector_ListError(t *testing.T) {
	_, err := NewCollector(&fakeRuns{err: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list runs")
}

func TestAlerter_Evaluate(t *testing.T) {
	cfg := config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		CostThresholdUSD:     5,
		BlockedRunsThreshold: 2,
	}

	tests := []struct {
		name string
		snap MetricsSnapshot
		want []AlertType
	}{
		{
			name: "healthy",
			snap: MetricsSnapshot{RunsComplete: 19, RunsFailed: 1, FailRate: 0.05, CostUSD: 1, ReviewsClassified: 100},
		},
		{
			name: "failure rate",
			snap: MetricsSnapshot{RunsComplete: 6, RunsFailed: 4, FailRate: 0.4, ReviewsClassified: 10},
			want: []AlertType{AlertRunFailureRate},
		},
		{
			name: "too few runs for a rate",
			snap: MetricsSnapshot{RunsComplete: 1, RunsFailed: 2, FailRate: 0.66},
		},
		{
			name: "blocked",
			snap: MetricsSnapshot{RunsBlocked: 2, ReviewsClassified: 5},
			want: []AlertType{AlertRunsBlocked},
		},
		{
			name: "cost",
			snap: MetricsSnapshot{CostUSD: 7.5, ReviewsClassified: 5},
			want: []AlertType{AlertCostOverrun},
		},
		{
			name: "classifier down",
			snap: MetricsSnapshot{ReviewsClassified: 12, ClassifierErrors: 12},
			want: []AlertType{AlertClassifierFault},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := NewAlerter(cfg).Evaluate(&tt.snap)
			var got []AlertType
			for _, a := range alerts {
				got = append(got, a.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlerter_Evaluate_Message(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{CostThresholdUSD: 1})
	alerts := a.Evaluate(&MetricsSnapshot{CostUSD: 2.5, ReviewsClassified: 1, LookbackHours: 24})
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "$2.50")
	assert.Contains(t, alerts[0].Message, "24h")
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "one"},
		{Type: AlertRunsBlocked, Severity: "high", Message: "two"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_NoTarget(t *testing.T) {
	assert.Equal(t, 0, NewAlerter(config.MonitoringConfig{}).SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}}))
	assert.Equal(t, 0, NewAlerter(config.MonitoringConfig{WebhookURL: "http://127.0.0.1:1"}).SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}}))
}

func TestChecker_Check(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer ts.Close()

	now := time.Now().UTC()
	runs := &fakeRuns{runs: []model.Run{
		{ID: "1", Status: model.RunStatusComplete, CreatedAt: now, Stats: stats(0, 10, 0, 3)},
	}}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, CostThresholdUSD: 2}
	c := NewChecker(NewCollector(runs), NewAlerter(cfg), cfg)

	assert.Equal(t, 1, c.Check(context.Background(), 24, zap.NewNop()))
	assert.Equal(t, int32(1), received.Load())

	runs.err = errors.New("db down")
	assert.Equal(t, 0, c.Check(context.Background(), 24, zap.NewNop()))
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24}
	c := NewChecker(NewCollector(&fakeRuns{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}
