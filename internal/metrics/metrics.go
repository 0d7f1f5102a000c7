// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は収集実行と永続化のPrometheusメトリクスを収集する。
// collect.Recorderとcourse.BatchRecorderの両方を満たす。
type Collector struct {
	entriesSucceeded prometheus.Counter
	validationFailed prometheus.Counter
	extractionFailed prometheus.Counter
	retries          prometheus.Counter
	apiPages         prometheus.Counter
	batchesAttempted prometheus.Counter
	rowsConfirmed    prometheus.Counter
	rowsDropped      prometheus.Counter
	runDuration      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		entriesSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_entries_succeeded_total",
			Help: "抽出に成功した講座エントリの合計数",
		}),
		validationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_entries_validation_failed_total",
			Help: "構造検証で棄却された講座エントリの合計数",
		}),
		extractionFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_entries_extraction_failed_total",
			Help: "リトライ上限まで抽出に失敗した講座エントリの合計数",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_entry_retries_total",
			Help: "エントリ抽出リトライの合計数",
		}),
		apiPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_api_pages_total",
			Help: "取得した検索APIページの合計数",
		}),
		batchesAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_upsert_batches_total",
			Help: "試行したUPSERTバッチの合計数",
		}),
		rowsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_rows_confirmed_total",
			Help: "確定保存された講座行の合計数",
		}),
		rowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_rows_dropped_total",
			Help: "永続化前検証で脱落した講座行の合計数",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courseman_run_duration_seconds",
			Help:    "収集実行全体の所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(
		c.entriesSucceeded,
		c.validationFailed,
		c.extractionFailed,
		c.retries,
		c.apiPages,
		c.batchesAttempted,
		c.rowsConfirmed,
		c.rowsDropped,
		c.runDuration,
	)

	return c
}

// RecordEntrySucceeded はエントリ抽出成功を記録する。
func (c *Collector) RecordEntrySucceeded() {
	c.entriesSucceeded.Inc()
}

// RecordEntryValidationFailed は構造検証による棄却を記録する。
func (c *Collector) RecordEntryValidationFailed() {
	c.validationFailed.Inc()
}

// RecordEntryExtractionFailed はリトライ上限到達による失敗を記録する。
func (c *Collector) RecordEntryExtractionFailed() {
	c.extractionFailed.Inc()
}

// RecordRetry はリトライ1回を記録する。
func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

// RecordAPIPage は検索APIページの取得を記録する。
func (c *Collector) RecordAPIPage() {
	c.apiPages.Inc()
}

// RecordBatchAttempt はUPSERTバッチの試行を記録する。
func (c *Collector) RecordBatchAttempt() {
	c.batchesAttempted.Inc()
}

// RecordBatchConfirmed は確定保存された行数を記録する。
func (c *Collector) RecordBatchConfirmed(rows int) {
	c.rowsConfirmed.Add(float64(rows))
}

// RecordRowsDropped は永続化前検証で脱落した行数を記録する。
func (c *Collector) RecordRowsDropped(rows int) {
	c.rowsDropped.Add(float64(rows))
}

// RecordRunDuration は収集実行全体の所要時間を記録する。
func (c *Collector) RecordRunDuration(duration time.Duration) {
	c.runDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupRoutes は/metricsと/healthzを提供するルーターを返す。
func SetupRoutes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler(gatherer))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}
