// Package parse は抽出テキストを型付き値へ変換する純粋関数群を提供する。
// すべての関数は全域関数であり、パース不能な入力に対しても例外的に
// 失敗せず、nilまたはゼロ値のセンチネルを返す。
package parse

import (
	"strconv"
	"strings"
)

// titleNoiseSuffixes は講座タイトル末尾のノイズ接尾辞。
// 優先順位つきで評価され、各接尾辞は最大1回だけ除去される。
var titleNoiseSuffixes = []string{
	"강의 썸네일",
	"썸네일",
	"강의",
	" - ",
}

// PriceToNumber は価格文字列を整数に変換する。
// ASCII数字以外の文字（通貨記号、桁区切り、単位語）をすべて除去してから
// 10進整数としてパースする。数字が1つも含まれない場合はnilを返す。
func PriceToNumber(text string) *int64 {
	digits := keepDigits(text)
	if digits == "" {
		return nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// StudentCount は受講生数文字列を整数に変換する。
// 数字と桁区切りカンマ以外を除去し、カンマを取り除いてからパースする。
// 末尾の「+」（概数マーカー）は非数字として自然に捨てられる。
// 数字が含まれない場合はnilを返す。
func StudentCount(text string) *int64 {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' || r == ',' {
			b.WriteRune(r)
		}
	}
	digits := strings.ReplaceAll(b.String(), ",", "")
	if digits == "" {
		return nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// DiscountRate は割引率文字列を整数に変換する。
// 数字以外の文字を除去してパースする。割引の不在は「不明」ではなく
// 意味的にゼロであるため、空・パース不能時はnilではなく0を返す。
func DiscountRate(text string) int {
	digits := keepDigits(text)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// CleanCourseURL はURLからクエリ文字列（トラッキングパラメータ）を除去する。
// 最初の「?」で切り捨てる。クエリ文字列がない場合のフラグメント（#...）は
// 維持され、クエリ文字列の後ろにあるフラグメントはクエリごと落ちる。
// この非対称は収集元URLの実挙動に合わせて固定されている。
func CleanCourseURL(rawURL string) string {
	if i := strings.Index(rawURL, "?"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// CleanTitle はタイトル前後の空白を除去し、既知のノイズ接尾辞を
// 優先順位順に各1回ずつ取り除く。接尾辞除去のたびに再トリムする。
func CleanTitle(title string) string {
	cleaned := strings.TrimSpace(title)
	for _, suffix := range titleNoiseSuffixes {
		if strings.HasSuffix(cleaned, suffix) {
			cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, suffix))
		}
	}
	return cleaned
}

// CourseIDFromURL はURLのパスから講座スラッグを導出する。
// 最後の「/course/」マーカーの後続セグメントをクエリ文字列手前まで返す。
// マーカーが存在しない場合は空文字を返す（course_idは任意情報）。
func CourseIDFromURL(rawURL string) string {
	const marker = "/course/"
	i := strings.LastIndex(rawURL, marker)
	if i < 0 {
		return ""
	}
	id := rawURL[i+len(marker):]
	if j := strings.Index(id, "?"); j >= 0 {
		id = id[:j]
	}
	return id
}

// keepDigits は文字列からASCII数字のみを残す。
func keepDigits(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
