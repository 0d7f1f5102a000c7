// Package catalog は講座検索APIからの講座データ収集を提供する。
// JSONレスポンスをドメインモデルへ正規化し、ページネーションで巡回する。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/parse"
)

const (
	// DefaultBaseURL は講座検索APIのベースURL。
	DefaultBaseURL = "https://course-api.inflearn.com/client/api/v2"
	// defaultPageSize は1ページあたりの取得件数。APIの上限は40。
	defaultPageSize = 40
	// courseURLPrefix はslugから正規URLを組み立てる際のプレフィックス。
	courseURLPrefix = "https://www.inflearn.com/course/"
)

// statusOK はAPIエンベロープの正常ステータス。
const statusOK = "OK"

// envelope はAPIレスポンスの外側の構造。
type envelope struct {
	StatusCode string `json:"statusCode"`
	Message    string `json:"message"`
	Data       page   `json:"data"`
}

type page struct {
	Items []item `json:"items"`
}

// item は検索結果1件分。講座・講師・価格の3ブロックで構成される。
type item struct {
	Course     courseBlock     `json:"course"`
	Instructor instructorBlock `json:"instructor"`
	ListPrice  priceBlock      `json:"listPrice"`
}

type courseBlock struct {
	ID           int64   `json:"id"`
	Slug         string  `json:"slug"`
	Title        string  `json:"title"`
	Star         float64 `json:"star"`
	ReviewCount  int64   `json:"reviewCount"`
	StudentCount int64   `json:"studentCount"`
	ThumbnailURL string  `json:"thumbnailUrl"`
}

type instructorBlock struct {
	Name string `json:"name"`
}

type priceBlock struct {
	RegularPrice int64 `json:"regularPrice"`
	PayPrice     int64 `json:"payPrice"`
	DiscountRate int   `json:"discountRate"`
}

// PageRecorder はページ取得の計測フック。
type PageRecorder interface {
	RecordAPIPage()
}

type nopPageRecorder struct{}

func (nopPageRecorder) RecordAPIPage() {}

// Options はClientの構成項目。
type Options struct {
	// BaseURL が空の場合はDefaultBaseURLを使う。
	BaseURL string
	// Language は応答言語（ko/en）。空の場合はko。
	Language string
	// Timeout はリクエスト単位のタイムアウト。0の場合は10秒。
	Timeout time.Duration
	// Interval はページ取得の最小間隔。0の場合は500ms。
	Interval time.Duration
	// Recorder がnilの場合は計測なしで動作する。
	Recorder PageRecorder
}

// Client は講座検索APIのクライアント。
// セッション共通ヘッダーを保持し、ページ間はレートリミッターで間隔を空ける。
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	recorder PageRecorder
	baseURL  string
	language string
	now      func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(logger *slog.Logger, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Language == "" {
		opts.Language = "ko"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Recorder == nil {
		opts.Recorder = nopPageRecorder{}
	}

	http := resty.New()
	http.SetTimeout(opts.Timeout)
	http.SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	http.SetHeader("Accept", "application/json")
	http.SetHeader("Accept-Language", fmt.Sprintf("%s-KR,%s;q=0.9", opts.Language, opts.Language))
	http.SetHeader("Referer", "https://www.inflearn.com/")

	return &Client{
		http:     http,
		limiter:  rate.NewLimiter(rate.Every(opts.Interval), 1),
		logger:   logger,
		recorder: opts.Recorder,
		baseURL:  opts.BaseURL,
		language: opts.Language,
		now:      time.Now,
	}
}

// fetchPage は指定カテゴリの1ページ分の検索結果を取得する。
// pageNumberは1始まり。エンベロープのstatusCodeがOK以外の場合はエラーを返す。
func (c *Client) fetchPage(ctx context.Context, category string, pageNumber int) ([]item, error) {
	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"categories":            category,
			"pageNumber":            fmt.Sprintf("%d", pageNumber),
			"pageSize":              fmt.Sprintf("%d", defaultPageSize),
			"sort":                  "RECOMMEND",
			"types":                 "ONLINE,OFFLINE",
			"lang":                  c.language,
			"isBot":                 "false",
			"isDiscounted":          "false",
			"isEarlybirdDiscounted": "false",
			"keyword":               "",
		}).
		SetResult(&env).
		Get(c.baseURL + "/courses/search")
	if err != nil {
		return nil, fmt.Errorf("講座検索APIの呼び出しに失敗しました: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("講座検索APIがステータス %d を返しました", resp.StatusCode())
	}
	if env.StatusCode != statusOK {
		return nil, fmt.Errorf("講座検索APIがエラーを返しました: %s", env.Message)
	}

	c.recorder.RecordAPIPage()
	c.logger.Info("検索結果ページを取得しました",
		slog.Int("page", pageNumber),
		slog.Int("items", len(env.Data.Items)),
	)
	return env.Data.Items, nil
}

// CollectAll は最大maxCourses件になるまでページを巡回して講座を収集する。
// 空ページまたはAPI失敗で巡回を打ち切り、それまでの収集分を返す。
// 正規化に失敗した項目はログに残してスキップする。
func (c *Client) CollectAll(ctx context.Context, category string, maxCourses int) ([]model.Course, error) {
	var courses []model.Course
	pageNumber := 1

	c.logger.Info("API巡回を開始します",
		slog.String("category", category),
		slog.Int("max_courses", maxCourses),
	)

	for len(courses) < maxCourses {
		if err := c.limiter.Wait(ctx); err != nil {
			return courses, err
		}

		items, err := c.fetchPage(ctx, category, pageNumber)
		if err != nil {
			c.logger.Warn("ページ取得に失敗したため巡回を打ち切ります",
				slog.Int("page", pageNumber),
				slog.String("error", err.Error()),
			)
			break
		}
		if len(items) == 0 {
			c.logger.Info("空ページに到達したため巡回を終了します", slog.Int("page", pageNumber))
			break
		}

		for _, it := range items {
			course, err := c.normalize(it)
			if err != nil {
				c.logger.Warn("項目の正規化に失敗したためスキップします",
					slog.String("error", err.Error()),
				)
				continue
			}
			courses = append(courses, course)
			if len(courses) >= maxCourses {
				break
			}
		}

		c.logger.Info("巡回の進行状況",
			slog.Int("collected", len(courses)),
			slog.Int("target", maxCourses),
		)
		pageNumber++
	}

	c.logger.Info("API巡回が完了しました", slog.Int("collected", len(courses)))
	return courses, nil
}

// normalize は検索結果1件をドメインモデルへ変換する。
// slugから正規URLを組み立て、割引率が正の場合のみセール扱いとする。
func (c *Client) normalize(it item) (model.Course, error) {
	if it.Course.Slug == "" {
		return model.Course{}, fmt.Errorf("slugが空の項目は正規化できません")
	}
	if it.Course.Title == "" {
		return model.Course{}, fmt.Errorf("タイトルが空の項目は正規化できません: slug=%s", it.Course.Slug)
	}

	rawURL := courseURLPrefix + it.Course.Slug
	course := model.Course{
		URL:           parse.CleanCourseURL(rawURL),
		CourseID:      fmt.Sprintf("%d", it.Course.ID),
		Title:         parse.CleanTitle(it.Course.Title),
		Instructor:    it.Instructor.Name,
		OriginalPrice: model.Int64Ptr(it.ListPrice.RegularPrice),
		SalePrice:     model.Int64Ptr(it.ListPrice.PayPrice),
		DiscountRate:  it.ListPrice.DiscountRate,
		IsOnSale:      it.ListPrice.DiscountRate > 0,
		Rating:        model.Float64Ptr(it.Course.Star),
		ReviewCount:   model.Int64Ptr(it.Course.ReviewCount),
		StudentCount:  model.Int64Ptr(it.Course.StudentCount),
		ThumbnailURL:  it.Course.ThumbnailURL,
		ScrapedAt:     c.now().UTC(),
		Source:        model.SourceInflearn,
	}
	return course, nil
}
