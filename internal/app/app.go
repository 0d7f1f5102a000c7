package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/courseman/internal/artifact"
	"github.com/hitoshi/courseman/internal/catalog"
	"github.com/hitoshi/courseman/internal/collect"
	"github.com/hitoshi/courseman/internal/config"
	"github.com/hitoshi/courseman/internal/course"
	"github.com/hitoshi/courseman/internal/database"
	"github.com/hitoshi/courseman/internal/extract"
	"github.com/hitoshi/courseman/internal/extract/htmlentry"
	"github.com/hitoshi/courseman/internal/htmlfetch"
	"github.com/hitoshi/courseman/internal/logger"
	"github.com/hitoshi/courseman/internal/metrics"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
	"github.com/hitoshi/courseman/internal/review"
)

const (
	// Version は成果物メタデータのフォーマットバージョン。
	Version = "1.0.0"
	// ScraperVersion は収集器のバージョン。
	ScraperVersion = "4.0.0"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("category", cfg.Category),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandReview:
		return runReview(cfg)
	case CommandServe:
		return runServe(cfg)
	default:
		return runScrape(cfg)
	}
}

// runScrape は1回の収集実行を行う。
// API巡回で講座を収集し、成果物を書き出し、レコードをUPSERTする。
// API巡回が1件も返さなかった場合はカテゴリページHTMLの走査にフォール
// バックする。SIGINT/SIGTERMで実行中のコンテキストをキャンセルする。
func runScrape(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// メトリクスは収集実行中もスクレイプ可能にする
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	metricsServer := startMetricsServer(cfg.ServerPort, reg)
	defer stopMetricsServer(metricsServer)

	runID := uuid.New().String()
	startedAt := time.Now()

	runCfg := model.RunConfig{
		MaxCourses: cfg.MaxCourses,
		Category:   cfg.Category,
		Method:     "API",
		BaseURL:    cfg.APIBaseURL,
	}

	courses, failures, err := collectCourses(ctx, cfg, collector, &runCfg)

	duration := roundSeconds(time.Since(startedAt))
	meta := &model.RunMetadata{
		RunID:                   runID,
		Version:                 Version,
		ScraperVersion:          ScraperVersion,
		TotalCourses:            len(courses),
		FailedCourses:           len(failures),
		ScrapedAt:               startedAt.UTC(),
		ScrapingDurationSeconds: duration,
		Config:                  runCfg,
	}
	if err != nil {
		meta.Error = err.Error()
	}
	collector.RecordRunDuration(time.Since(startedAt))

	writer, werr := artifact.NewWriter(cfg.OutputDir, slog.Default())
	if werr != nil {
		return werr
	}
	if _, werr := writer.WriteCourses(courses, meta); werr != nil {
		return werr
	}
	if _, werr := writer.WriteFailures(failures); werr != nil {
		return werr
	}

	if err != nil {
		return fmt.Errorf("collection aborted: %w", err)
	}

	logSummary(courses)

	batcher := course.NewBatcher(repository.NewPostgresCourseRepo(db), slog.Default(), collector, cfg.BatchSize)
	confirmed, err := batcher.Upsert(ctx, courses)
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}

	slog.Info("scrape run completed",
		slog.String("run_id", runID),
		slog.Int("collected", len(courses)),
		slog.Int("failed", len(failures)),
		slog.Int("confirmed", confirmed),
		slog.Float64("duration_seconds", duration),
	)
	return nil
}

// collectCourses は講座の収集を行う。API巡回を第一経路とし、
// 1件も収集できなかった場合のみHTML走査へフォールバックする。
func collectCourses(ctx context.Context, cfg *config.Config, collector *metrics.Collector, runCfg *model.RunConfig) ([]model.Course, []model.FailureRecord, error) {
	client := catalog.NewClient(slog.Default(), catalog.Options{
		BaseURL:  cfg.APIBaseURL,
		Language: cfg.APILanguage,
		Timeout:  cfg.APITimeout,
		Interval: cfg.APIInterval,
		Recorder: collector,
	})

	courses, err := client.CollectAll(ctx, cfg.Category, cfg.MaxCourses)
	if err != nil {
		return nil, nil, err
	}
	if len(courses) > 0 {
		for range courses {
			collector.RecordEntrySucceeded()
		}
		return courses, nil, nil
	}

	slog.Warn("API巡回が0件だったためHTML走査にフォールバックします",
		slog.String("page_url", cfg.CategoryPageURL),
	)
	runCfg.Method = "HTML"
	runCfg.BaseURL = cfg.CategoryPageURL

	fetcher := htmlfetch.NewFetcher(slog.Default(), htmlfetch.Options{Timeout: cfg.ElementTimeout})
	page, err := fetcher.FetchPage(ctx, cfg.CategoryPageURL)
	if err != nil {
		return nil, nil, err
	}

	handles, err := htmlentry.Entries(page)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]extract.EntryHandle, len(handles))
	for i, h := range handles {
		entries[i] = h
	}

	assembler := extract.NewAssembler(
		extract.NewExtractor(extract.DefaultSelectorSet(), slog.Default()),
		slog.Default(),
	)
	c := collect.NewCollector(assembler, slog.Default(), collector, collect.Config{
		MaxCourses: cfg.MaxCourses,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	})
	result, err := c.Collect(ctx, entries)
	if err != nil {
		return result.Courses, result.Failures, err
	}
	return result.Courses, result.Failures, nil
}

// logSummary は収集レコードのフィールド別の件数を報告する。
func logSummary(courses []model.Course) {
	if len(courses) == 0 {
		slog.Warn("収集されたレコードがありません")
		return
	}

	var title, instructor, url, thumbnail, originalPrice, salePrice, discount, rating, reviewCount, studentCount int
	for _, c := range courses {
		if c.Title != "" {
			title++
		}
		if c.Instructor != "" {
			instructor++
		}
		if c.URL != "" {
			url++
		}
		if c.ThumbnailURL != "" {
			thumbnail++
		}
		if c.OriginalPrice != nil {
			originalPrice++
		}
		if c.SalePrice != nil {
			salePrice++
		}
		if c.DiscountRate > 0 {
			discount++
		}
		if c.Rating != nil {
			rating++
		}
		if c.ReviewCount != nil {
			reviewCount++
		}
		if c.StudentCount != nil {
			studentCount++
		}
	}

	slog.Info("収集結果サマリー",
		slog.Int("total", len(courses)),
		slog.Int("with_title", title),
		slog.Int("with_instructor", instructor),
		slog.Int("with_url", url),
		slog.Int("with_thumbnail", thumbnail),
		slog.Int("with_original_price", originalPrice),
		slog.Int("with_sale_price", salePrice),
		slog.Int("with_discount", discount),
		slog.Int("with_rating", rating),
		slog.Int("with_review_count", reviewCount),
		slog.Int("with_student_count", studentCount),
	)
}

// runReview は保存済みでレビュー未生成の講座にAIレビューを生成する。
func runReview(cfg *config.Config) error {
	if err := cfg.RequireOpenAI(); err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	courseRepo := repository.NewPostgresCourseRepo(db)
	courses, err := courseRepo.ListWithoutReviews(ctx, cfg.ReviewMaxCourses)
	if err != nil {
		return fmt.Errorf("failed to list courses without reviews: %w", err)
	}
	if len(courses) == 0 {
		slog.Info("レビュー未生成の講座はありません")
		return nil
	}

	reviewer := review.NewReviewer(
		openai.NewClient(cfg.OpenAIAPIKey),
		repository.NewPostgresReviewRepo(db),
		slog.Default(),
		review.Options{
			Model:         cfg.OpenAIModel,
			BatchSize:     cfg.ReviewBatchSize,
			BatchInterval: cfg.ReviewBatchInterval,
		},
	)

	stored, err := reviewer.GenerateAndStore(ctx, courses)
	if err != nil {
		return fmt.Errorf("review generation failed: %w", err)
	}

	slog.Info("review run completed",
		slog.Int("candidates", len(courses)),
		slog.Int("stored", len(stored)),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runServe はメトリクスサーバーモードで起動する。
// /metricsと/healthzを公開し、SIGINT/SIGTERMでグレースフルに停止する。
func runServe(cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)

	server := startMetricsServer(cfg.ServerPort, reg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down metrics server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("metrics server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// startMetricsServer はメトリクスHTTPサーバーをバックグラウンドで起動する。
func startMetricsServer(port string, reg *prometheus.Registry) *http.Server {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      metrics.SetupRoutes(reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("metrics server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	return server
}

// stopMetricsServer はメトリクスサーバーを停止する。
func stopMetricsServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}
}

// roundSeconds は所要時間を小数2桁の秒に丸める。
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
