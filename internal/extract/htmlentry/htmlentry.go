// Package htmlentry はカテゴリページHTMLをエントリハンドル列へ変換する。
// goqueryでDOMを走査し、講座リンクのアンカー要素をエントリとして切り出す。
// 読み取ったテキストは許可タグなしのサニタイズポリシーでクリーンアップし、
// マークアップ断片がフィールド値に混入しないようにする。
package htmlentry

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// entrySelector はカタログページ内の講座エントリを特定するセレクタ。
const entrySelector = `a[href*="/course/"]`

// textPolicy はテキスト読み取り時のサニタイズポリシー。
// StrictPolicyはすべてのタグを除去しテキストのみを残す。
var textPolicy = bluemonday.StrictPolicy()

// Handle はgoqueryのセレクションに対するエントリハンドル実装。
type Handle struct {
	selection *goquery.Selection
}

// Entries はカテゴリページのHTMLから講座エントリのハンドル列を返す。
// HTMLのパースに失敗した場合はエラーを返す。エントリが1件もないページは
// 空スライスを返す（エラーではない）。
func Entries(html string) ([]*Handle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("HTMLのパースに失敗しました: %w", err)
	}

	var handles []*Handle
	doc.Find(entrySelector).Each(func(_ int, s *goquery.Selection) {
		handles = append(handles, &Handle{selection: s})
	})
	return handles, nil
}

// Text はセレクタに一致する最初の子要素のテキストを返す。
// 空のセレクタはエントリ自身を指す。一致する要素がない場合はエラーを返す。
func (h *Handle) Text(selector string) (string, error) {
	target := h.resolve(selector)
	if target.Length() == 0 {
		return "", fmt.Errorf("セレクタに一致する要素がありません: %q", selector)
	}
	return strings.TrimSpace(textPolicy.Sanitize(target.First().Text())), nil
}

// Attr はセレクタに一致する最初の子要素の属性値を返す。
// 要素または属性が存在しない場合はエラーを返す。
func (h *Handle) Attr(selector, name string) (string, error) {
	target := h.resolve(selector)
	if target.Length() == 0 {
		return "", fmt.Errorf("セレクタに一致する要素がありません: %q", selector)
	}
	value, ok := target.First().Attr(name)
	if !ok {
		return "", fmt.Errorf("属性 %q が存在しません: selector=%q", name, selector)
	}
	return strings.TrimSpace(value), nil
}

func (h *Handle) resolve(selector string) *goquery.Selection {
	if selector == "" {
		return h.selection
	}
	return h.selection.Find(selector)
}
