// Package collect はカタログエントリ群の収集オーケストレーションを提供する。
// エントリごとのリトライ/バックオフ、構造検証ゲート、失敗台帳の生成、
// 収集統計の集計を含む。処理は逐次であり、出力順は入力順と一致する。
package collect

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/courseman/internal/extract"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/parse"
	"github.com/hitoshi/courseman/internal/validate"
)

// CourseAssembler はエントリハンドル1件からレコード1件を合成する
// インターフェース。テスト時にモックへ差し替え可能。
type CourseAssembler interface {
	Assemble(h extract.EntryHandle, index int) (model.Course, error)
}

// Recorder は収集メトリクスの記録インターフェース。
type Recorder interface {
	RecordEntrySucceeded()
	RecordEntryValidationFailed()
	RecordEntryExtractionFailed()
	RecordRetry()
}

// nopRecorder は何も記録しないRecorder実装。
type nopRecorder struct{}

func (nopRecorder) RecordEntrySucceeded()        {}
func (nopRecorder) RecordEntryValidationFailed() {}
func (nopRecorder) RecordEntryExtractionFailed() {}
func (nopRecorder) RecordRetry()                 {}

// Config は収集オーケストレータの設定。
type Config struct {
	// MaxCourses は処理するエントリ数の上限。0以下は無制限。
	MaxCourses int
	// MaxRetries はエントリごとの再試行回数（初回試行を含まない）。
	MaxRetries int
	// BaseDelay はバックオフの基準遅延。実際の遅延は BaseDelay * 試行回数。
	BaseDelay time.Duration
}

// DefaultConfig はデフォルトの収集設定を返す。
func DefaultConfig() Config {
	return Config{
		MaxCourses: 20,
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
	}
}

// RunStats は1回の収集パス全体の集計値。
// 不変条件としてではなくサマリーログとして報告される。
type RunStats struct {
	TotalAttempted   int
	Succeeded        int
	ValidationFailed int
	ExtractionFailed int
	TotalRetries     int
	Duration         time.Duration
}

// SuccessRate は成功率（0〜1）を返す。試行が0件の場合は0。
func (s RunStats) SuccessRate() float64 {
	if s.TotalAttempted == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.TotalAttempted)
}

// AvgPerEntry はエントリあたりの平均処理時間を返す。
func (s RunStats) AvgPerEntry() time.Duration {
	if s.TotalAttempted == 0 {
		return 0
	}
	return s.Duration / time.Duration(s.TotalAttempted)
}

// Result は収集パスの結果。成功レコードと失敗台帳に分割される。
type Result struct {
	Courses  []model.Course
	Failures []model.FailureRecord
	Stats    RunStats
}

// Collector は収集オーケストレータ。エントリごとの状態遷移は
// Pending → {Succeeded | ValidationFailed | ExtractionFailed} であり、
// 検証失敗は決定的（同じ入力でリトライしても結果が変わらない）ため
// 即時に終端し、リトライは抽出時の例外的失敗に対してのみ行う。
type Collector struct {
	assembler CourseAssembler
	logger    *slog.Logger
	recorder  Recorder
	config    Config

	// sleep はバックオフ用の待機関数。テスト時に差し替え可能。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCollector はCollectorの新しいインスタンスを生成する。
// recorderがnilの場合は記録を行わない。
func NewCollector(assembler CourseAssembler, logger *slog.Logger, recorder Recorder, config Config) *Collector {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Collector{
		assembler: assembler,
		logger:    logger,
		recorder:  recorder,
		config:    config,
		sleep:     sleepContext,
	}
}

// Collect はエントリハンドルのリストを逐次処理し、成功レコードと
// 失敗台帳に分割して返す。エントリリストは処理開始前にMaxCoursesへ
// 切り詰められる。1エントリの抽出（リトライ含む）が完全に終わってから
// 次のエントリへ進む。コンテキストのキャンセルは実行全体を中断する。
func (c *Collector) Collect(ctx context.Context, entries []extract.EntryHandle) (Result, error) {
	start := time.Now()

	if c.config.MaxCourses > 0 && len(entries) > c.config.MaxCourses {
		entries = entries[:c.config.MaxCourses]
	}

	c.logger.Info("収集パスを開始します",
		slog.Int("entry_count", len(entries)),
		slog.Int("max_retries", c.config.MaxRetries),
	)

	result := Result{}

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Stats.TotalAttempted++

		course, attempts, err := c.collectOne(ctx, entry, i)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			// リトライ予算の枯渇
			result.Stats.ExtractionFailed++
			result.Stats.TotalRetries += attempts - 1
			result.Failures = append(result.Failures, model.FailureRecord{
				Index:      i,
				URL:        c.bestEffortURL(entry),
				Error:      err.Error(),
				RetryCount: attempts,
			})
			c.recorder.RecordEntryExtractionFailed()
			c.logger.Error("エントリの抽出に失敗しました",
				slog.Int("index", i),
				slog.Int("attempts", attempts),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.Stats.TotalRetries += attempts - 1

		// 構造検証ゲート: 不通過は決定的な失敗でありリトライしない
		if !validate.Course(course) {
			result.Stats.ValidationFailed++
			result.Failures = append(result.Failures, model.FailureRecord{
				Index:      i,
				URL:        course.URL,
				Error:      "構造検証に失敗しました（タイトルまたはURLが不足）",
				RetryCount: attempts,
			})
			c.recorder.RecordEntryValidationFailed()
			c.logger.Warn("エントリが構造検証を通過しませんでした",
				slog.Int("index", i),
				slog.String("url", course.URL),
				slog.String("title", course.Title),
			)
			continue
		}

		result.Courses = append(result.Courses, course)
		result.Stats.Succeeded++
		c.recorder.RecordEntrySucceeded()
		c.logger.Info("エントリを収集しました",
			slog.Int("index", i),
			slog.String("title", truncate(course.Title, 40)),
			slog.String("url", course.URL),
		)
	}

	result.Stats.Duration = time.Since(start)

	c.logger.Info("収集パスが完了しました",
		slog.Int("total_attempted", result.Stats.TotalAttempted),
		slog.Int("succeeded", result.Stats.Succeeded),
		slog.Int("validation_failed", result.Stats.ValidationFailed),
		slog.Int("extraction_failed", result.Stats.ExtractionFailed),
		slog.Int("total_retries", result.Stats.TotalRetries),
		slog.Float64("success_rate", result.Stats.SuccessRate()),
		slog.Duration("duration", result.Stats.Duration),
		slog.Duration("avg_per_entry", result.Stats.AvgPerEntry()),
	)

	return result, nil
}

// collectOne は1エントリをリトライ付きで抽出する。
// 戻り値のattemptsは実際に消費した試行回数（初回を含む）。
func (c *Collector) collectOne(ctx context.Context, entry extract.EntryHandle, index int) (model.Course, int, error) {
	maxAttempts := c.config.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		course, err := c.assembler.Assemble(entry, index)
		if err == nil {
			return course, attempt, nil
		}

		lastErr = err
		if attempt < maxAttempts {
			c.recorder.RecordRetry()
			delay := c.config.BaseDelay * time.Duration(attempt)
			c.logger.Warn("抽出に失敗したため再試行します",
				slog.Int("index", index),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return model.Course{}, attempt, sleepErr
			}
		}
	}

	return model.Course{}, maxAttempts, lastErr
}

// bestEffortURL は失敗台帳用にエントリのURLを防御的に再抽出する。
// 二次的な失敗はすべて握り潰し、取得できなければ空文字を返す。
func (c *Collector) bestEffortURL(entry extract.EntryHandle) string {
	href, err := entry.Attr("", "href")
	if err != nil {
		return ""
	}
	return parse.CleanCourseURL(strings.TrimSpace(href))
}

// sleepContext はコンテキストのキャンセルを尊重して待機する。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate は文字列をrune単位で最大n文字に切り詰める。
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
