// Package security はメール本文に埋め込むHTMLの安全化を提供する。
//
// CMSの抜粋フィールドはリッチテキストエディタ由来のHTMLを含むため、
// キャンペーン本文に差し込む前にbluemondayの許可リストポリシーで
// 安全なタグと属性のみを通過させる。
package security

import "github.com/microcosm-cc/bluemonday"

// Sanitizer はHTMLサニタイズ機能のインターフェースを定義する。
type Sanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// excerptSanitizer はSanitizerの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type excerptSanitizer struct {
	policy *bluemonday.Policy
}

// NewExcerptSanitizer はメール向け抜粋サニタイザーを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, strong, em, b, i, u, h2, h3, h4, img
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - URLスキーム: https と mailto のみ許可（http, javascript, data等は除去）
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewExcerptSanitizer() *excerptSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em", "b", "i", "u",
		"h2", "h3", "h4",
	)

	// メールクライアントでは相対URLが解決できない
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AllowURLSchemes("https", "mailto")

	p.AllowAttrs("src", "alt").OnElements("img")

	return &excerptSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *excerptSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}

var _ Sanitizer = (*excerptSanitizer)(nil)
