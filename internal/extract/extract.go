// Package extract はカタログエントリからのフィールド抽出機能を提供する。
// エントリハンドルの抽象、セレクタフォールバック戦略、フィールドごとの
// 抽出器、およびレコードアセンブラを含む。
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/parse"
	"github.com/hitoshi/courseman/internal/validate"
)

// EntryHandle はカタログエントリ1件への不透明な参照。
// セレクタで子要素を特定してテキストや属性を読み取る能力を提供する。
// 読み取りは実装側で有界待機され、要素不在やタイムアウトはエラーとして
// 返される（パニックしない）。空のセレクタはエントリ自身を指す。
type EntryHandle interface {
	// Text はセレクタに一致する最初の子要素のテキストを返す。
	Text(selector string) (string, error)
	// Attr はセレクタに一致する最初の子要素の属性値を返す。
	Attr(selector, name string) (string, error)
}

// SelectorSet はフィールドごとのセレクタ候補リスト。
// 各リストは優先順位順に試行され、最初に成功した戦略が採用される。
type SelectorSet struct {
	Title        []string
	TitleImgAlt  []string
	Instructor   []string
	Thumbnail    []string
	FirstPrice   []string
	SecondPrice  []string
	DiscountRate []string
	Rating       []string
	ReviewCount  []string
	StudentCount []string
}

// DefaultSelectorSet はInflearnカタログページ向けのセレクタ候補を返す。
// nth-child系セレクタはDOM構造変更に弱いため、汎用セレクタを先頭に置く。
func DefaultSelectorSet() SelectorSet {
	return SelectorSet{
		Title:        []string{"p.mantine-Text-root", "div:nth-child(2) > div:nth-child(1) > p:nth-child(1)"},
		TitleImgAlt:  []string{"img[alt]", "picture img"},
		Instructor:   []string{"div:nth-child(2) > div:nth-child(1) > p:nth-child(2)", "p.mantine-Text-root"},
		Thumbnail:    []string{"picture img", "img"},
		FirstPrice:   []string{"div:nth-child(2) > div:nth-child(2) > div > div:nth-child(1) > p"},
		SecondPrice:  []string{"div:nth-child(2) > div:nth-child(2) > div > div:nth-child(2) > p"},
		DiscountRate: []string{"div:nth-child(2) > div:nth-child(2) > div > div:nth-child(2) > p:nth-child(2)"},
		Rating:       []string{"div:nth-child(2) > div:nth-child(3) > div > div > div:nth-child(2) > div:nth-child(1) > div > p"},
		ReviewCount:  []string{"div:nth-child(2) > div:nth-child(3) > div > div > div:nth-child(2) > div:nth-child(1) > p"},
		StudentCount: []string{"div:nth-child(2) > div:nth-child(3) > div > div > div:nth-child(2) > div:nth-child(2) > span"},
	}
}

// ratingPattern は小数を含む裸の数値テキスト。
var ratingPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Extractor はフィールド抽出器の集合。エントリハンドルとセレクタ候補を
// 受け取り、型付き値またはnull相当を返す。ハンドル側の失敗（要素不在、
// 待機タイムアウト、不正なマークアップ）はすべて抽出器の境界で吸収され、
// debugレベルでログされる。フィールドの不在は収集元データとして正当な
// 状態であり、エラーとして伝播しない。
type Extractor struct {
	selectors SelectorSet
	logger    *slog.Logger
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
func NewExtractor(selectors SelectorSet, logger *slog.Logger) *Extractor {
	return &Extractor{selectors: selectors, logger: logger}
}

// textWithFallback はセレクタ候補を順に試行してテキストを抽出する。
// 各候補はハンドル→テキストの独立した純粋戦略であり、最初に
// 非空テキストを返し（validatorがあればそれも通過し）た候補が勝つ。
// すべて失敗した場合は空文字を返す。
func (e *Extractor) textWithFallback(h EntryHandle, selectors []string, validator func(string) bool) string {
	for _, sel := range selectors {
		text, err := h.Text(sel)
		if err != nil {
			e.logger.Debug("セレクタでのテキスト抽出に失敗しました",
				slog.String("selector", sel),
				slog.String("error", err.Error()),
			)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if validator != nil && !validator(text) {
			e.logger.Debug("抽出テキストが検証を通過しませんでした",
				slog.String("selector", sel),
				slog.String("text", text),
			)
			continue
		}
		return text
	}
	return ""
}

// Title は講座タイトルを抽出する。テキストセレクタを順に試行し、
// すべて失敗した場合は画像のalt属性へフォールバックする。
// 採用したテキストはノイズ接尾辞除去を経て返される。
func (e *Extractor) Title(h EntryHandle) string {
	longEnough := func(s string) bool { return len([]rune(s)) > 5 }

	if text := e.textWithFallback(h, e.selectors.Title, longEnough); text != "" {
		return parse.CleanTitle(text)
	}

	// 代替戦略: サムネイル画像のalt属性
	for _, sel := range e.selectors.TitleImgAlt {
		alt, err := h.Attr(sel, "alt")
		if err != nil {
			e.logger.Debug("alt属性によるタイトル抽出に失敗しました",
				slog.String("selector", sel),
				slog.String("error", err.Error()),
			)
			continue
		}
		alt = strings.TrimSpace(alt)
		if longEnough(alt) {
			return parse.CleanTitle(alt)
		}
	}

	return ""
}

// Instructor は講師名を抽出する。妥当性フィルタを通過した候補のみを
// 採用し、通過する候補がなければ空文字（null相当）を返す。
// フィルタ不通過はレコード全体の拒否理由にはならない。
func (e *Extractor) Instructor(h EntryHandle) string {
	return e.textWithFallback(h, e.selectors.Instructor, validate.Instructor)
}

// Thumbnail はサムネイル画像URLを抽出する。
func (e *Extractor) Thumbnail(h EntryHandle) string {
	for _, sel := range e.selectors.Thumbnail {
		src, err := h.Attr(sel, "src")
		if err != nil {
			e.logger.Debug("サムネイル抽出に失敗しました",
				slog.String("selector", sel),
				slog.String("error", err.Error()),
			)
			continue
		}
		if src = strings.TrimSpace(src); src != "" {
			return src
		}
	}
	return ""
}

// PriceInfo は価格情報（定価・割引価格・割引率・割引中フラグ）を抽出する。
// エントリには価格系テキストノードが最大2つ存在する。
// 「第1価格」スロットの存在が割引中であることを示す:
//   - 存在する場合、それが定価となり、第2価格スロットが割引価格、
//     割引率スロットが割引率となる。
//   - 存在しない場合、唯一の第2価格スロットが定価かつ割引価格となり、
//     割引率は0、割引中フラグはfalseとなる。
//
// 定価のパースに失敗した場合は部分的に埋まった構造体ではなく
// 全null/ゼロのデフォルトを返す。
func (e *Extractor) PriceInfo(h EntryHandle) model.PriceInfo {
	firstText := e.textWithFallback(h, e.selectors.FirstPrice, nil)

	if firstText != "" {
		original := parse.PriceToNumber(firstText)
		if original == nil {
			// 価格スロットに価格でないテキストが入っている。
			// 下流が無条件にフィールドを展開しても壊れないよう全デフォルトを返す。
			e.logger.Debug("第1価格スロットのパースに失敗しました",
				slog.String("text", firstText),
			)
			return model.PriceInfo{}
		}

		info := model.PriceInfo{
			OriginalPrice: original,
			IsOnSale:      true,
		}
		if saleText := e.textWithFallback(h, e.selectors.SecondPrice, nil); saleText != "" {
			info.SalePrice = parse.PriceToNumber(saleText)
		}
		if rateText := e.textWithFallback(h, e.selectors.DiscountRate, nil); rateText != "" {
			info.DiscountRate = parse.DiscountRate(rateText)
		}
		return info
	}

	// 第1価格スロットが不在: 割引なし。唯一の価格が定価かつ販売価格。
	soleText := e.textWithFallback(h, e.selectors.SecondPrice, nil)
	if soleText == "" {
		return model.PriceInfo{}
	}
	price := parse.PriceToNumber(soleText)
	if price == nil {
		return model.PriceInfo{}
	}
	return model.PriceInfo{
		OriginalPrice: price,
		SalePrice:     price,
		DiscountRate:  0,
		IsOnSale:      false,
	}
}

// Rating は評点を抽出する。パース後に範囲（0〜5）を再検証し、
// 範囲外の値は収集元を信用せず破棄する（警告ログのみ、エラーにしない）。
func (e *Extractor) Rating(h EntryHandle) *float64 {
	text := e.textWithFallback(h, e.selectors.Rating, ratingPattern.MatchString)
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	if v < 0 || v > 5 {
		e.logger.Warn("評点が範囲外のため破棄します",
			slog.Float64("rating", v),
		)
		return nil
	}
	return &v
}

// ReviewCount はリビュー数を抽出する。「(1,234)」のような括弧付き表記を
// 許容するため、外側の括弧1組と桁区切りを取り除いてからパースする。
func (e *Extractor) ReviewCount(h EntryHandle) *int64 {
	text := e.textWithFallback(h, e.selectors.ReviewCount, nil)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		text = text[1 : len(text)-1]
	}
	return parse.StudentCount(text)
}

// StudentCount は受講生数を抽出する。末尾の「+」（概数マーカー）を許容する。
func (e *Extractor) StudentCount(h EntryHandle) *int64 {
	text := e.textWithFallback(h, e.selectors.StudentCount, nil)
	if text == "" {
		return nil
	}
	return parse.StudentCount(text)
}

// Assembler はエントリハンドル1件をフラットな講座レコード1件へ合成する。
type Assembler struct {
	extractor *Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// NewAssembler はAssemblerの新しいインスタンスを生成する。
func NewAssembler(extractor *Extractor, logger *slog.Logger) *Assembler {
	return &Assembler{
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// Assemble はエントリハンドルから全フィールドを1回ずつ抽出し、
// 収集元タグと収集時刻を付与した講座レコードを返す。
// indexはログと失敗記録の相関に使用される。
// エントリのリンク属性が読めない場合は抽出全体の失敗として
// 空レコードとエラーを返す。
func (a *Assembler) Assemble(h EntryHandle, index int) (model.Course, error) {
	href, err := h.Attr("", "href")
	if err != nil {
		a.logger.Error("エントリのリンク属性の読み取りに失敗しました",
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		return model.Course{}, fmt.Errorf("エントリ %d のリンク属性の読み取りに失敗しました: %w", index, err)
	}

	url := parse.CleanCourseURL(strings.TrimSpace(href))
	price := a.extractor.PriceInfo(h)

	course := model.Course{
		URL:           url,
		CourseID:      parse.CourseIDFromURL(url),
		Title:         a.extractor.Title(h),
		Instructor:    a.extractor.Instructor(h),
		OriginalPrice: price.OriginalPrice,
		SalePrice:     price.SalePrice,
		DiscountRate:  price.DiscountRate,
		IsOnSale:      price.IsOnSale,
		Rating:        a.extractor.Rating(h),
		ReviewCount:   a.extractor.ReviewCount(h),
		StudentCount:  a.extractor.StudentCount(h),
		ThumbnailURL:  a.extractor.Thumbnail(h),
		ScrapedAt:     a.now().UTC(),
		Source:        model.SourceInflearn,
	}

	return course, nil
}
