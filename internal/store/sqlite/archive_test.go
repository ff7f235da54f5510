package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"chartsync/internal/metrics"
	"chartsync/internal/model"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := New(ArchiveConfig{DBPath: filepath.Join(t.TempDir(), "candles.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func bar(sec int64, close float64) model.Candle {
	return model.Candle{
		Time: time.Unix(sec, 0).UTC(),
		Open: close, High: close + 0.001, Low: close - 0.001, Close: close,
		Volume: 10,
	}
}

func TestArchive_RoundTrip(t *testing.T) {
	a := newTestArchive(t)
	sel := model.SeriesSelector{Symbol: "EURUSD", Timeframe: model.TF1m}

	jobs := []archiveJob{{sel: sel, candles: []model.Candle{bar(60, 1.05), bar(120, 1.06)}}}
	if rows, err := a.insertJobs(jobs); err != nil || rows != 2 {
		t.Fatalf("insert: rows=%d err=%v", rows, err)
	}

	got, err := a.LoadRange(context.Background(), sel, time.Unix(0, 0), time.Unix(300, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d bars, want 2", len(got))
	}
	if got[0].Close != 1.05 || !got[0].Time.Equal(time.Unix(60, 0).UTC()) {
		t.Fatalf("first bar = %+v", got[0])
	}

	last, err := a.LastTimestamp(sel)
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(time.Unix(120, 0).UTC()) {
		t.Fatalf("last = %v", last)
	}
}

func TestArchive_UpsertReplacesBar(t *testing.T) {
	a := newTestArchive(t)
	sel := model.SeriesSelector{Symbol: "EURUSD", Timeframe: model.TF1m}

	a.insertJobs([]archiveJob{{sel: sel, candles: []model.Candle{bar(60, 1.05)}}})
	amended := bar(60, 1.07)
	a.insertJobs([]archiveJob{{sel: sel, candles: []model.Candle{amended}}})

	got, err := a.LoadRange(context.Background(), sel, time.Unix(0, 0), time.Unix(300, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Close != 1.07 {
		t.Fatalf("bars = %+v, want single amended bar", got)
	}
}

func TestArchive_SeriesAreIsolated(t *testing.T) {
	a := newTestArchive(t)
	eur := model.SeriesSelector{Symbol: "EURUSD", Timeframe: model.TF1m}
	eurH := model.SeriesSelector{Symbol: "EURUSD", Timeframe: model.TF1H}

	a.insertJobs([]archiveJob{
		{sel: eur, candles: []model.Candle{bar(60, 1.05)}},
		{sel: eurH, candles: []model.Candle{bar(3600, 1.06)}},
	})

	got, err := a.LoadRange(context.Background(), eur, time.Unix(0, 0), time.Unix(7200, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Close != 1.05 {
		t.Fatalf("1m series = %+v", got)
	}
}

func TestArchive_RunFlushesQueue(t *testing.T) {
	a := newTestArchive(t)
	sel := model.SeriesSelector{Symbol: "GBPUSD", Timeframe: model.TF5m}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	a.Archive(sel, []model.Candle{bar(300, 1.27), bar(600, 1.28)})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := a.LoadRange(context.Background(), sel, time.Unix(0, 0), time.Unix(900, 0))
		if err == nil && len(got) == 2 {
			cancel()
			<-done
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("queued bars never committed")
}

func TestArchive_FlushRecordsMetrics(t *testing.T) {
	// Bare collectors, not NewMetrics: the default registry is
	// process-global and re-registration panics.
	met := &metrics.Metrics{
		ArchiveRows:    prometheus.NewCounter(prometheus.CounterOpts{Name: "test_archive_rows_total"}),
		ArchiveFlushes: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_archive_flush_seconds"}),
	}
	a, err := New(ArchiveConfig{DBPath: filepath.Join(t.TempDir(), "candles.db"), Metrics: met})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	sel := model.SeriesSelector{Symbol: "EURUSD", Timeframe: model.TF1m}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	a.Archive(sel, []model.Candle{bar(60, 1.05), bar(120, 1.06), bar(180, 1.07)})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(met.ArchiveRows) == 3 {
			cancel()
			<-done
			var pb dto.Metric
			if err := met.ArchiveFlushes.Write(&pb); err != nil {
				t.Fatal(err)
			}
			if got := pb.Histogram.GetSampleCount(); got != 1 {
				t.Fatalf("flush histogram samples = %d, want 1", got)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("archive rows counter = %v, want 3", testutil.ToFloat64(met.ArchiveRows))
}

func TestArchive_EmptyBatchIgnored(t *testing.T) {
	a := newTestArchive(t)
	a.Archive(model.SeriesSelector{Symbol: "X", Timeframe: model.TF1m}, nil)
	if len(a.queue) != 0 {
		t.Fatal("empty batch was queued")
	}
}
