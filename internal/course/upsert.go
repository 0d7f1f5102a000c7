// Package course は講座レコードの永続化バッチャーを提供する。
// 収集済みレコードを永続化前検証にかけ、バッチに分割してUPSERTする。
package course

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
	"github.com/hitoshi/courseman/internal/validate"
)

// DefaultBatchSize はUPSERT1回あたりの既定レコード数。
const DefaultBatchSize = 10

// BatchRecorder はバッチ永続化の計測フック。
type BatchRecorder interface {
	// RecordBatchAttempt はバッチUPSERTの試行を記録する。
	RecordBatchAttempt()
	// RecordBatchConfirmed は確定保存された行数を記録する。
	RecordBatchConfirmed(rows int)
	// RecordRowsDropped は永続化前検証で脱落した行数を記録する。
	RecordRowsDropped(rows int)
}

type nopBatchRecorder struct{}

func (nopBatchRecorder) RecordBatchAttempt()      {}
func (nopBatchRecorder) RecordBatchConfirmed(int) {}
func (nopBatchRecorder) RecordRowsDropped(int)    {}

// Batcher は講座レコードを検証・分割してリポジトリへUPSERTする。
type Batcher struct {
	repo      repository.CourseRepository
	logger    *slog.Logger
	recorder  BatchRecorder
	batchSize int
	now       func() time.Time
}

// NewBatcher はBatcherを生成する。batchSizeが0以下の場合は既定値を使う。
// recorderがnilの場合は計測なしで動作する。
func NewBatcher(repo repository.CourseRepository, logger *slog.Logger, recorder BatchRecorder, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if recorder == nil {
		recorder = nopBatchRecorder{}
	}
	return &Batcher{
		repo:      repo,
		logger:    logger,
		recorder:  recorder,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Upsert は講座レコード群を永続化し、確定保存された件数を返す。
//
// 永続化前検証で脱落したレコードはバッチに含めない。失敗したバッチは
// ログに残してスキップし、後続バッチの処理を続行する。戻り値の件数は
// UPSERTが成功したバッチの行数合計のみを数える。
// 空入力の場合はリポジトリを呼ばずに0を返す。
func (b *Batcher) Upsert(ctx context.Context, courses []model.Course) (int, error) {
	if len(courses) == 0 {
		return 0, nil
	}

	rows := make([]repository.CourseRow, 0, len(courses))
	for _, c := range courses {
		if !validate.ForStorage(c) {
			continue
		}
		rows = append(rows, b.toRow(c))
	}
	if dropped := len(courses) - len(rows); dropped > 0 {
		b.recorder.RecordRowsDropped(dropped)
		b.logger.Warn("永続化前検証で脱落したレコードがあります",
			slog.Int("dropped", dropped),
			slog.Int("total", len(courses)),
		)
	}

	confirmed := 0
	failedBatches := 0
	for start := 0; start < len(rows); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}

		end := start + b.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		b.recorder.RecordBatchAttempt()
		if err := b.repo.UpsertBatch(ctx, batch); err != nil {
			failedBatches++
			b.logger.Error("バッチUPSERTに失敗しました",
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}
		confirmed += len(batch)
		b.recorder.RecordBatchConfirmed(len(batch))
	}

	b.logger.Info("講座レコードの永続化が完了しました",
		slog.Int("input", len(courses)),
		slog.Int("confirmed", confirmed),
		slog.Int("failed_batches", failedBatches),
	)
	return confirmed, nil
}

// toRow はドメインモデルをストレージ行へ変換し、スキーマデフォルトを適用する。
func (b *Batcher) toRow(c model.Course) repository.CourseRow {
	row := repository.CourseRow{
		URL:           c.URL,
		CourseID:      c.CourseID,
		Title:         c.Title,
		Instructor:    c.Instructor,
		OriginalPrice: c.OriginalPrice,
		SalePrice:     c.SalePrice,
		DiscountRate:  c.DiscountRate,
		IsOnSale:      c.IsOnSale,
		Rating:        c.Rating,
		ReviewCount:   c.ReviewCount,
		ThumbnailURL:  c.ThumbnailURL,
		ScrapedAt:     c.ScrapedAt,
		Source:        c.Source,
		IsTrending:    false,
		UpdatedAt:     b.now().UTC(),
	}
	if c.StudentCount != nil {
		row.StudentCount = *c.StudentCount
	}
	return row
}
