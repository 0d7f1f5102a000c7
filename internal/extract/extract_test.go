package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/courseman/internal/model"
)

// fakeHandle はテスト用のエントリハンドル。セレクタ→テキスト、
// セレクタ+属性名→値のマップで応答し、エラー注入もできる。
type fakeHandle struct {
	texts map[string]string
	attrs map[string]string
	errs  map[string]error
}

func (f *fakeHandle) Text(selector string) (string, error) {
	if err, ok := f.errs[selector]; ok {
		return "", err
	}
	text, ok := f.texts[selector]
	if !ok {
		return "", fmt.Errorf("要素が見つかりません: %s", selector)
	}
	return text, nil
}

func (f *fakeHandle) Attr(selector, name string) (string, error) {
	key := selector + "|" + name
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	v, ok := f.attrs[key]
	if !ok {
		return "", fmt.Errorf("属性が見つかりません: %s[%s]", selector, name)
	}
	return v, nil
}

// testSelectors はテスト用の単純なセレクタ集合。
func testSelectors() SelectorSet {
	return SelectorSet{
		Title:        []string{"title-a", "title-b"},
		TitleImgAlt:  []string{"img"},
		Instructor:   []string{"instructor"},
		Thumbnail:    []string{"thumb"},
		FirstPrice:   []string{"price-1"},
		SecondPrice:  []string{"price-2"},
		DiscountRate: []string{"rate"},
		Rating:       []string{"rating"},
		ReviewCount:  []string{"reviews"},
		StudentCount: []string{"students"},
	}
}

func newTestExtractor() *Extractor {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return NewExtractor(testSelectors(), logger)
}

func TestExtractor_PriceInfo_OnSale(t *testing.T) {
	h := &fakeHandle{texts: map[string]string{
		"price-1": "₩99,000",
		"price-2": "₩77,000",
		"rate":    "22%",
	}}

	info := newTestExtractor().PriceInfo(h)

	if !info.IsOnSale {
		t.Error("第1価格スロットが存在する場合 IsOnSale = true でなければならない")
	}
	if info.OriginalPrice == nil || *info.OriginalPrice != 99000 {
		t.Errorf("OriginalPrice = %v, want 99000", info.OriginalPrice)
	}
	if info.SalePrice == nil || *info.SalePrice != 77000 {
		t.Errorf("SalePrice = %v, want 77000", info.SalePrice)
	}
	if info.DiscountRate != 22 {
		t.Errorf("DiscountRate = %d, want 22", info.DiscountRate)
	}
}

func TestExtractor_PriceInfo_NotOnSale(t *testing.T) {
	h := &fakeHandle{texts: map[string]string{
		"price-2": "₩55,000",
	}}

	info := newTestExtractor().PriceInfo(h)

	if info.IsOnSale {
		t.Error("第1価格スロットが不在の場合 IsOnSale = false でなければならない")
	}
	if info.OriginalPrice == nil || info.SalePrice == nil {
		t.Fatal("唯一の価格が定価かつ販売価格として設定されなければならない")
	}
	if *info.OriginalPrice != *info.SalePrice || *info.OriginalPrice != 55000 {
		t.Errorf("OriginalPrice = %d, SalePrice = %d, want 両方55000", *info.OriginalPrice, *info.SalePrice)
	}
	if info.DiscountRate != 0 {
		t.Errorf("DiscountRate = %d, want 0", info.DiscountRate)
	}
}

func TestExtractor_PriceInfo_DefaultOnFailure(t *testing.T) {
	// 第1価格スロットに価格でないテキストが入っている場合、
	// 部分的に埋まった構造体ではなく全デフォルトを返す
	h := &fakeHandle{texts: map[string]string{
		"price-1": "할인중",
		"price-2": "₩77,000",
		"rate":    "22%",
	}}

	info := newTestExtractor().PriceInfo(h)

	if info != (model.PriceInfo{}) {
		t.Errorf("パース失敗時は全null/ゼロのデフォルトを返さなければならない: %+v", info)
	}
}

func TestExtractor_PriceInfo_NoPricesAtAll(t *testing.T) {
	h := &fakeHandle{texts: map[string]string{}}

	info := newTestExtractor().PriceInfo(h)

	if info != (model.PriceInfo{}) {
		t.Errorf("価格スロットが両方不在の場合は全デフォルトを返さなければならない: %+v", info)
	}
}

func TestExtractor_Rating(t *testing.T) {
	t.Run("正常範囲", func(t *testing.T) {
		h := &fakeHandle{texts: map[string]string{"rating": "4.9"}}
		got := newTestExtractor().Rating(h)
		if got == nil || *got != 4.9 {
			t.Errorf("Rating = %v, want 4.9", got)
		}
	})

	t.Run("範囲外は破棄", func(t *testing.T) {
		h := &fakeHandle{texts: map[string]string{"rating": "49"}}
		if got := newTestExtractor().Rating(h); got != nil {
			t.Errorf("範囲外の評点は破棄されなければならない: got %v", *got)
		}
	})

	t.Run("数値でないテキストは破棄", func(t *testing.T) {
		h := &fakeHandle{texts: map[string]string{"rating": "평점 4.9"}}
		if got := newTestExtractor().Rating(h); got != nil {
			t.Errorf("数値パターンに一致しないテキストは破棄されなければならない: got %v", *got)
		}
	})

	t.Run("要素不在はnil", func(t *testing.T) {
		h := &fakeHandle{}
		if got := newTestExtractor().Rating(h); got != nil {
			t.Errorf("要素不在時はnilを返さなければならない: got %v", *got)
		}
	})
}

func TestExtractor_ReviewCount_Parenthesized(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "(1,234)", want: 1234},
		{in: "(7)", want: 7},
		{in: "244", want: 244},
	}

	for _, tt := range tests {
		h := &fakeHandle{texts: map[string]string{"reviews": tt.in}}
		got := newTestExtractor().ReviewCount(h)
		if got == nil || *got != tt.want {
			t.Errorf("ReviewCount(%q) = %v, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExtractor_Instructor_PlausibilityFilter(t *testing.T) {
	t.Run("妥当な講師名は採用", func(t *testing.T) {
		h := &fakeHandle{texts: map[string]string{"instructor": "홍길동"}}
		if got := newTestExtractor().Instructor(h); got != "홍길동" {
			t.Errorf("Instructor = %q, want 홍길동", got)
		}
	})

	t.Run("リビュー数の誤取りは破棄", func(t *testing.T) {
		h := &fakeHandle{texts: map[string]string{"instructor": "(244)"}}
		if got := newTestExtractor().Instructor(h); got != "" {
			t.Errorf("妥当性フィルタ不通過の候補は空文字にならなければならない: got %q", got)
		}
	})
}

func TestExtractor_Title_FallbackToImgAlt(t *testing.T) {
	h := &fakeHandle{
		attrs: map[string]string{"img|alt": "Python 기초강의 썸네일"},
	}

	got := newTestExtractor().Title(h)
	if got != "Python 기초" {
		t.Errorf("Title = %q, want %q (alt属性フォールバック + 接尾辞除去)", got, "Python 기초")
	}
}

func TestExtractor_Title_SelectorFallbackOrder(t *testing.T) {
	// 第1候補が失敗したら第2候補を試す（first-success-wins）
	h := &fakeHandle{
		texts: map[string]string{"title-b": "JavaScript 완전 정복"},
		errs:  map[string]error{"title-a": errors.New("タイムアウト")},
	}

	got := newTestExtractor().Title(h)
	if got != "JavaScript 완전 정복" {
		t.Errorf("Title = %q, want JavaScript 완전 정복", got)
	}
}

func newTestAssembler() *Assembler {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return NewAssembler(NewExtractor(testSelectors(), logger), logger)
}

func TestAssembler_Assemble(t *testing.T) {
	h := &fakeHandle{
		texts: map[string]string{
			"title-a":    "Go 완전 정복 로드맵",
			"instructor": "김철수",
			"price-1":    "₩99,000",
			"price-2":    "₩77,000",
			"rate":       "22%",
			"rating":     "4.8",
			"reviews":    "(1,234)",
			"students":   "3,800+",
		},
		attrs: map[string]string{
			"|href":     "https://www.inflearn.com/course/go-complete?attributionToken=xyz",
			"thumb|src": "https://cdn.inflearn.com/thumb.png",
		},
	}

	a := newTestAssembler()
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	course, err := a.Assemble(h, 0)
	if err != nil {
		t.Fatalf("Assemble がエラーを返した: %v", err)
	}

	if course.URL != "https://www.inflearn.com/course/go-complete" {
		t.Errorf("URL = %q, トラッキングパラメータが除去されていない", course.URL)
	}
	if course.CourseID != "go-complete" {
		t.Errorf("CourseID = %q, want go-complete", course.CourseID)
	}
	if course.Title != "Go 완전 정복 로드맵" {
		t.Errorf("Title = %q", course.Title)
	}
	if course.Instructor != "김철수" {
		t.Errorf("Instructor = %q", course.Instructor)
	}
	if course.OriginalPrice == nil || *course.OriginalPrice != 99000 {
		t.Errorf("OriginalPrice = %v, want 99000", course.OriginalPrice)
	}
	if course.SalePrice == nil || *course.SalePrice != 77000 {
		t.Errorf("SalePrice = %v, want 77000", course.SalePrice)
	}
	if !course.IsOnSale || course.DiscountRate != 22 {
		t.Errorf("IsOnSale = %v, DiscountRate = %d", course.IsOnSale, course.DiscountRate)
	}
	if course.Rating == nil || *course.Rating != 4.8 {
		t.Errorf("Rating = %v, want 4.8", course.Rating)
	}
	if course.ReviewCount == nil || *course.ReviewCount != 1234 {
		t.Errorf("ReviewCount = %v, want 1234", course.ReviewCount)
	}
	if course.StudentCount == nil || *course.StudentCount != 3800 {
		t.Errorf("StudentCount = %v, want 3800", course.StudentCount)
	}
	if course.ThumbnailURL != "https://cdn.inflearn.com/thumb.png" {
		t.Errorf("ThumbnailURL = %q", course.ThumbnailURL)
	}
	if course.Source != model.SourceInflearn {
		t.Errorf("Source = %q, want %q", course.Source, model.SourceInflearn)
	}
	if !course.ScrapedAt.Equal(fixed) {
		t.Errorf("ScrapedAt = %v, want %v", course.ScrapedAt, fixed)
	}
}

func TestAssembler_Assemble_SameURLAcrossRuns(t *testing.T) {
	// 同じエントリを別時刻で抽出してもURLは同一でなければならない
	mk := func(token string) *fakeHandle {
		return &fakeHandle{
			texts: map[string]string{"title-a": "Python 기초 강좌"},
			attrs: map[string]string{"|href": "https://www.inflearn.com/course/python-basics?attributionToken=" + token},
		}
	}

	a := newTestAssembler()
	first, err := a.Assemble(mk("run1"), 0)
	if err != nil {
		t.Fatalf("Assemble がエラーを返した: %v", err)
	}
	second, err := a.Assemble(mk("run2"), 0)
	if err != nil {
		t.Fatalf("Assemble がエラーを返した: %v", err)
	}

	if first.URL != second.URL {
		t.Errorf("異なる実行間でURLが一致しない: %q != %q", first.URL, second.URL)
	}
}

func TestAssembler_Assemble_LinkFailure(t *testing.T) {
	h := &fakeHandle{
		errs: map[string]error{"|href": errors.New("要素の待機がタイムアウトしました")},
	}

	course, err := newTestAssembler().Assemble(h, 3)
	if err == nil {
		t.Fatal("リンク属性が読めない場合はエラーを返さなければならない")
	}
	if !course.IsZero() {
		t.Errorf("抽出全体の失敗時は空レコードを返さなければならない: %+v", course)
	}
}
