// Package validate は講座レコードの検証機能を提供する。
// 構造検証（抽出受け入れゲート）、講師名の妥当性判定（抽出境界での
// フィルタ）、永続化前検証（ストレージ書き込みゲート）の3種類を含む。
package validate

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/courseman/internal/model"
)

const (
	// minTitleLength はタイトルの最小文字数（トリム後）。
	minTitleLength = 3
	// minInstructorLength / maxInstructorLength は講師名の許容文字数帯。
	minInstructorLength = 2
	maxInstructorLength = 50
	// maxLatinTagLength はこれ以下のラテン文字のみの単一トークンを
	// 技術タグとみなす閾値。
	maxLatinTagLength = 10
)

var (
	// parenthesizedIntPattern は「(244)」のような括弧付き整数（リビュー数の誤取り）。
	parenthesizedIntPattern = regexp.MustCompile(`^\(\d+\)$`)
	// bareNumberPattern は「4.9」「100」のような裸の数値（評点・割引率の誤取り）。
	bareNumberPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
	// promoWindowPattern は「3일만」のような期間限定プロモーション文言。
	promoWindowPattern = regexp.MustCompile(`\d+일\s*만`)
	// latinTokenPattern はASCII英字のみの単一トークン。
	latinTokenPattern = regexp.MustCompile(`^[A-Za-z]+$`)
)

// Course は構造検証を行う。抽出結果を成功リストへ受け入れる際の
// 唯一のゲートであり、タイトルとURLの存在、およびトリム後の
// タイトル最小長のみを確認する。他のフィールドはすべてnullを許容する。
func Course(c model.Course) bool {
	if c.Title == "" || c.URL == "" {
		return false
	}
	if utf8.RuneCountInString(strings.TrimSpace(c.Title)) < minTitleLength {
		return false
	}
	return true
}

// Instructor は抽出された講師名候補の妥当性を判定する。
// 講師名の抽出は位置依存のヒューリスティックであり、隣接する別要素の
// テキスト（リビュー数、評点、割引率、価格、プロモ文言、技術タグ）を
// 誤って拾うことがあるため、それらの形状に一致する候補を除外する。
// このフィルタは講師名フィールド単体の採否を決めるもので、
// レコード全体を拒否することはない。
func Instructor(candidate string) bool {
	s := strings.TrimSpace(candidate)
	if s == "" {
		return false
	}

	n := utf8.RuneCountInString(s)
	if n < minInstructorLength || n > maxInstructorLength {
		return false
	}

	// 括弧付き整数はリビュー数の誤取りと推定
	if parenthesizedIntPattern.MatchString(s) {
		return false
	}
	// 裸の数値は評点の誤取りと推定
	if bareNumberPattern.MatchString(s) {
		return false
	}
	// パーセント記号は割引率、通貨記号は価格の誤取りと推定
	if strings.ContainsRune(s, '%') || strings.ContainsRune(s, '₩') {
		return false
	}
	// 期間限定プロモーション文言
	if promoWindowPattern.MatchString(s) {
		return false
	}
	// ローカル文字を含まない短いラテン文字トークンは技術タグと推定
	if latinTokenPattern.MatchString(s) && n <= maxLatinTagLength && !containsHangul(s) {
		return false
	}

	return true
}

// ForStorage は永続化前検証を行う。数値フィールドの範囲を検査し、
// 範囲外のレコードはバッチから脱落させる（フィールド名と値を警告ログに
// 残す）。review_count > student_count は実データで正当に発生しうるため
// 警告のみで拒否しないソフト不変条件。タイトル・URLの再検査は上流の
// 構造検証が既に弾いているはずの多重防御。
func ForStorage(c model.Course) bool {
	if c.Title == "" || c.URL == "" {
		slog.Warn("必須フィールドが欠落したレコードを永続化対象から除外します",
			slog.String("url", c.URL),
			slog.String("title", c.Title),
		)
		return false
	}

	if c.Rating != nil && (*c.Rating < 0 || *c.Rating > 5) {
		slog.Warn("評点が範囲外のレコードを永続化対象から除外します",
			slog.String("field", "rating"),
			slog.Float64("value", *c.Rating),
			slog.String("url", c.URL),
		)
		return false
	}

	for _, f := range []struct {
		name  string
		value *int64
	}{
		{"review_count", c.ReviewCount},
		{"student_count", c.StudentCount},
		{"original_price", c.OriginalPrice},
		{"sale_price", c.SalePrice},
	} {
		if f.value != nil && *f.value < 0 {
			slog.Warn("負の数値フィールドを持つレコードを永続化対象から除外します",
				slog.String("field", f.name),
				slog.Int64("value", *f.value),
				slog.String("url", c.URL),
			)
			return false
		}
	}

	// ソフト不変条件: カウントの更新は非同期のため逆転が正当に起こりうる
	if c.ReviewCount != nil && c.StudentCount != nil && *c.ReviewCount > *c.StudentCount {
		slog.Warn("リビュー数が受講生数を上回っています",
			slog.Int64("review_count", *c.ReviewCount),
			slog.Int64("student_count", *c.StudentCount),
			slog.String("url", c.URL),
		)
	}

	return true
}

// containsHangul は文字列にハングル文字が含まれるかを返す。
func containsHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
