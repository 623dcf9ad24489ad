package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/couchcryptid/msi-broadcast-etl/internal/observability"
	"github.com/couchcryptid/msi-broadcast-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wellFormedReport = "041130Z MAY 22\nHYDROPAC 1502/22(97).\nEAST CHINA SEA.\n" +
		"1. HAZARDOUS OPERATIONS IN AREA BOUND BY\n   30-00N 123-00E, 30-00N 124-00E,\n   29-00N 124-00E.\n" +
		"2. CANCEL THIS MSG 100900Z MAY 22.//"
	oneParagraphReport = "050800Z MAY 22\nHYDROPAC 1510/22(GEN) NAVTEX STATION OFF AIR.//"

	twoReportBulletin = "041200Z MAY 22\nHYDROPAC DAILY MEMORANDUM\n\n" +
		wellFormedReport + "\n\n" + oneParagraphReport + "\n"
)

var testNow = time.Date(2022, 5, 4, 13, 0, 0, 0, time.UTC)

// --- mocks ---

type mockFetcher struct {
	mu        sync.Mutex
	bulletins map[string]string
	errs      map[string]error
	calls     atomic.Int32
}

func (m *mockFetcher) Fetch(_ context.Context, source string) (domain.Bulletin, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[source]; ok {
		return domain.Bulletin{}, err
	}
	return domain.Bulletin{Source: source, FetchedAt: testNow, Text: m.bulletins[source]}, nil
}

type mockSink struct {
	name   string
	err    error
	runIDs []string
	stored []domain.OutputRecord
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Store(_ context.Context, runID string, records []domain.OutputRecord) error {
	m.runIDs = append(m.runIDs, runID)
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, records...)
	return nil
}

type mockNotifier struct {
	err  error
	sent []domain.Notification
}

func (m *mockNotifier) Send(_ context.Context, n domain.Notification) error {
	m.sent = append(m.sent, n)
	return m.err
}

type failingGuard struct{}

func (failingGuard) Acquire(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingGuard) Release(context.Context, string) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(t *testing.T, sources []string, f pipeline.BulletinFetcher, opts ...pipeline.Option) (*pipeline.Pipeline, *observability.Metrics) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(testNow)
	metrics := observability.NewMetricsForTesting()
	seg := domain.NewSegmenter(1, clk)
	tr := pipeline.NewTransformer(domain.DefaultRules(), clk, discardLogger())
	opts = append([]pipeline.Option{pipeline.WithClock(clk)}, opts...)
	return pipeline.New(sources, f, seg, tr, discardLogger(), metrics, opts...), metrics
}

// --- tests ---

func TestPipeline_Run_TwoReportBulletin(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	sink := &mockSink{name: "mock"}
	notifier := &mockNotifier{}

	p, metrics := newPipeline(t, []string{"HYDROPAC"}, f,
		pipeline.WithSinks(sink), pipeline.WithNotifier(notifier))

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	require.Len(t, result.Malformed, 1)
	assert.Equal(t, oneParagraphReport, result.Malformed[0].Text)
	assert.Equal(t, "HYDROPAC", result.Malformed[0].Source)
	assert.False(t, result.Records[0].Malformed)
	assert.True(t, result.Records[1].Malformed)
	assert.Empty(t, result.SourceErrors)
	assert.NotEmpty(t, result.RunID)

	row := domain.ToRow(result.Records[0])
	assert.Equal(t, "EAST CHINA SEA", row.Region)
	assert.Equal(t, "2022-05-04T12:00:00Z", row.InForce)
	assert.Contains(t, row.Polygons, "MULTIPOLYGON(((123.000000 30.000000,")
	assert.Equal(t, domain.RegionPlaceholder, domain.ToRow(result.Records[1]).Region)

	assert.Len(t, sink.stored, 2)
	assert.Equal(t, []string{result.RunID}, sink.runIDs)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, result.Notification.Key, notifier.sent[0].Key)
	assert.Contains(t, notifier.sent[0].HTMLBody, "<p>050800Z MAY 22</p>")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ReportsParsed.WithLabelValues("HYDROPAC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MalformedReports.WithLabelValues("HYDROPAC")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RecordsStored.WithLabelValues("mock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Notifications.WithLabelValues("sent")))
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_SourceFailureDegrades(t *testing.T) {
	f := &mockFetcher{
		bulletins: map[string]string{"HYDROPAC": twoReportBulletin},
		errs:      map[string]error{"HYDROLANT": errors.New("connection refused")},
	}
	p, metrics := newPipeline(t, []string{"HYDROLANT", "HYDROPAC"}, f)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 2)
	require.Contains(t, result.SourceErrors, "HYDROLANT")
	assert.EqualError(t, result.SourceErrors["HYDROLANT"], "connection refused")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SourceFailures.WithLabelValues("HYDROLANT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("partial")))
}

func TestPipeline_Run_EmptyBulletinDegrades(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin, "HYDROARC": "  \n"}}
	p, _ := newPipeline(t, []string{"HYDROARC", "HYDROPAC"}, f)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.ErrorIs(t, result.SourceErrors["HYDROARC"], pipeline.ErrEmptyBulletin)
}

func TestPipeline_Run_AllSourcesUnavailable(t *testing.T) {
	f := &mockFetcher{errs: map[string]error{
		"Pacific":  errors.New("timeout"),
		"Atlantic": errors.New("503"),
	}}
	sink := &mockSink{name: "mock"}
	notifier := &mockNotifier{}
	p, _ := newPipeline(t, []string{"Pacific", "Atlantic"}, f,
		pipeline.WithSinks(sink), pipeline.WithNotifier(notifier))

	result, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrAllSourcesUnavailable)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "503")
	assert.Len(t, result.SourceErrors, 2)
	assert.Empty(t, sink.runIDs)
	assert.Empty(t, notifier.sent)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_NoMalformedNoNotification(t *testing.T) {
	bulletin := "HEADER\n\n" + wellFormedReport
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": bulletin}}
	notifier := &mockNotifier{}
	p, _ := newPipeline(t, []string{"HYDROPAC"}, f, pipeline.WithNotifier(notifier))

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.True(t, result.Notification.IsEmpty())
	assert.Empty(t, notifier.sent)
}

func TestPipeline_Run_GuardSuppressesRepeat(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	notifier := &mockNotifier{}
	guard := pipeline.NewMemoryGuard(time.Hour, 10, clockwork.NewFakeClockAt(testNow))
	p, metrics := newPipeline(t, []string{"HYDROPAC"}, f,
		pipeline.WithNotifier(notifier), pipeline.WithGuard(guard))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Notifications.WithLabelValues("suppressed")))
}

func TestPipeline_Run_SendFailureReleasesGuard(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	notifier := &mockNotifier{err: errors.New("smtp: 421 try later")}
	guard := pipeline.NewMemoryGuard(time.Hour, 10, clockwork.NewFakeClockAt(testNow))
	p, _ := newPipeline(t, []string{"HYDROPAC"}, f,
		pipeline.WithNotifier(notifier), pipeline.WithGuard(guard))

	result, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send notification")
	assert.Len(t, result.Records, 2)

	notifier.err = nil
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 2)
}

func TestPipeline_Run_GuardErrorSkipsSend(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	notifier := &mockNotifier{}
	p, _ := newPipeline(t, []string{"HYDROPAC"}, f,
		pipeline.WithNotifier(notifier), pipeline.WithGuard(failingGuard{}))

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Empty(t, notifier.sent)
}

func TestPipeline_Run_SinkErrorDoesNotStopOtherSinks(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	bad := &mockSink{name: "bad", err: errors.New("disk full")}
	good := &mockSink{name: "good"}
	p, metrics := newPipeline(t, []string{"HYDROPAC"}, f, pipeline.WithSinks(bad, good))

	result, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink bad: disk full")
	assert.Len(t, result.Records, 2)
	assert.Len(t, good.stored, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("bad")))
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_Idempotent(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	p, _ := newPipeline(t, []string{"HYDROPAC"}, f)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	second, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	if diff := cmp.Diff(first.Records, second.Records); diff != "" {
		t.Errorf("records differ between runs (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.Notification.Key, second.Notification.Key)
}

func TestPipeline_Run_ContextCancelled(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	p, _ := newPipeline(t, []string{"HYDROPAC"}, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestPipeline_Schedule(t *testing.T) {
	f := &mockFetcher{bulletins: map[string]string{"HYDROPAC": twoReportBulletin}}
	clk := clockwork.NewFakeClockAt(testNow)
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New([]string{"HYDROPAC"}, f,
		domain.NewSegmenter(1, clk),
		pipeline.NewTransformer(domain.DefaultRules(), clk, discardLogger()),
		discardLogger(), metrics, pipeline.WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Schedule(ctx, time.Hour) }()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRunning))

	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(time.Hour)
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}
