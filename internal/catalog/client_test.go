package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return NewClient(testLogger(), Options{
		BaseURL:  baseURL,
		Interval: time.Millisecond,
	})
}

func searchItem(slug, title string, regular, pay int64, rate int) map[string]any {
	return map[string]any{
		"course": map[string]any{
			"id":           1234,
			"slug":         slug,
			"title":        title,
			"star":         4.8,
			"reviewCount":  120,
			"studentCount": 3500,
			"thumbnailUrl": "https://cdn.inflearn.com/thumb.png",
		},
		"instructor": map[string]any{"name": "김영한"},
		"listPrice": map[string]any{
			"regularPrice": regular,
			"payPrice":     pay,
			"discountRate": rate,
		},
	}
}

func writeEnvelope(w http.ResponseWriter, items []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"statusCode": "OK",
		"message":    "",
		"data":       map[string]any{"items": items},
	})
}

func TestCollectAll_NormalizesItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sort"); got != "RECOMMEND" {
			t.Errorf("sortパラメータが不正: %s", got)
		}
		if got := r.URL.Query().Get("isBot"); got != "false" {
			t.Errorf("isBotパラメータが不正: %s", got)
		}
		if r.URL.Query().Get("pageNumber") != "1" {
			writeEnvelope(w, nil)
			return
		}
		writeEnvelope(w, []map[string]any{
			searchItem("go-basics?utm_source=ad", "Go 입문 강의", 77000, 50050, 35),
		})
	}))
	defer server.Close()

	courses, err := testClient(server.URL).CollectAll(context.Background(), "it-programming", 10)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("収集件数が1ではない: %d", len(courses))
	}

	c := courses[0]
	if c.URL != "https://www.inflearn.com/course/go-basics" {
		t.Errorf("正規URLが不正: %s", c.URL)
	}
	if c.Title != "Go 입문 강의" {
		t.Errorf("タイトルが不正: %s", c.Title)
	}
	if c.Instructor != "김영한" {
		t.Errorf("講師名が不正: %s", c.Instructor)
	}
	if c.OriginalPrice == nil || *c.OriginalPrice != 77000 {
		t.Errorf("定価が不正: %v", c.OriginalPrice)
	}
	if c.SalePrice == nil || *c.SalePrice != 50050 {
		t.Errorf("セール価格が不正: %v", c.SalePrice)
	}
	if c.DiscountRate != 35 || !c.IsOnSale {
		t.Errorf("割引情報が不正: rate=%d on_sale=%v", c.DiscountRate, c.IsOnSale)
	}
	if c.Rating == nil || *c.Rating != 4.8 {
		t.Errorf("評点が不正: %v", c.Rating)
	}
	if c.StudentCount == nil || *c.StudentCount != 3500 {
		t.Errorf("受講生数が不正: %v", c.StudentCount)
	}
	if c.Source != "inflearn" {
		t.Errorf("ソース識別子が不正: %s", c.Source)
	}
	if c.ScrapedAt.Location() != time.UTC {
		t.Errorf("収集時刻がUTCではない: %v", c.ScrapedAt)
	}
}

func TestCollectAll_NoDiscountIsNotOnSale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageNumber") != "1" {
			writeEnvelope(w, nil)
			return
		}
		writeEnvelope(w, []map[string]any{
			searchItem("free-course", "무료 강의", 0, 0, 0),
		})
	}))
	defer server.Close()

	courses, err := testClient(server.URL).CollectAll(context.Background(), "it-programming", 10)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("収集件数が1ではない: %d", len(courses))
	}
	if courses[0].IsOnSale {
		t.Error("割引率0でセール扱いになっている")
	}
	if courses[0].OriginalPrice == nil || *courses[0].OriginalPrice != 0 {
		t.Errorf("無料講座の定価が0ではない: %v", courses[0].OriginalPrice)
	}
}

func TestCollectAll_StopsAtMaxCourses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("pageNumber")
		items := make([]map[string]any, 40)
		for i := range items {
			items[i] = searchItem(fmt.Sprintf("course-%s-%d", page, i), fmt.Sprintf("강의 %d", i), 10000, 10000, 0)
		}
		writeEnvelope(w, items)
	}))
	defer server.Close()

	courses, err := testClient(server.URL).CollectAll(context.Background(), "it-programming", 55)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(courses) != 55 {
		t.Errorf("収集件数が上限で打ち切られていない: %d", len(courses))
	}
}

func TestCollectAll_StopsOnEmptyPage(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("pageNumber") == "1" {
			writeEnvelope(w, []map[string]any{
				searchItem("only-one", "하나뿐인 강의", 10000, 10000, 0),
			})
			return
		}
		writeEnvelope(w, nil)
	}))
	defer server.Close()

	courses, err := testClient(server.URL).CollectAll(context.Background(), "it-programming", 100)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(courses) != 1 {
		t.Errorf("収集件数が1ではない: %d", len(courses))
	}
	if pages != 2 {
		t.Errorf("空ページ到達後に巡回が続いた: %d回", pages)
	}
}

func TestCollectAll_StopsOnAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"statusCode": "INTERNAL_ERROR",
			"message":    "일시적인 오류",
			"data":       map[string]any{"items": []any{}},
		})
	}))
	defer server.Close()

	courses, err := testClient(server.URL).CollectAll(context.Background(), "it-programming", 10)
	if err != nil {
		t.Fatalf("APIエラーは打ち切りでありエラー伝播ではない: %v", err)
	}
	if len(courses) != 0 {
		t.Errorf("収集件数が0ではない: %d", len(courses))
	}
}

func TestCollectAll_SkipsMalformedItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageNumber") != "1" {
			writeEnvelope(w, nil)
			return
		}
		writeEnvelope(w, []map[string]any{
			searchItem("", "slug 없는 강의", 10000, 10000, 0),
			searchItem("good-course", "정상 강의", 10000, 10000, 0),
		})
	}))
	defer server.Close()

	courses, err := testClient(server.URL).CollectAll(context.Background(), "it-programming", 10)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("不正項目がスキップされていない: %d件", len(courses))
	}
	if courses[0].URL != "https://www.inflearn.com/course/good-course" {
		t.Errorf("正常項目のURLが不正: %s", courses[0].URL)
	}
}
