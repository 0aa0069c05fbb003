// Package render は記事からキャンペーン本文のHTMLを生成する。
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/newsdispatch/internal/model"
	"github.com/hitoshi/newsdispatch/internal/security"
)

// defaultPreviewLength はプレビューテキストの最大文字数。
const defaultPreviewLength = 150

// Renderer はキャンペーン本文生成のインターフェース。
// 同一入力に対して決定的な出力を返し、任意フィールドが欠けていても失敗しない。
type Renderer interface {
	Render(entry *model.ContentEntry) (string, error)
	PreviewText(entry *model.ContentEntry) string
}

// Config はテンプレートに埋め込む絶対URLの基点。
type Config struct {
	PublicSiteURL string
	MediaBaseURL  string
	BrandName     string
}

// EmailRenderer はhtml/templateを使ったRendererの実装。
type EmailRenderer struct {
	config    Config
	sanitizer security.Sanitizer
	tmpl      *template.Template
}

// NewEmailRenderer はEmailRendererを生成する。
func NewEmailRenderer(config Config, sanitizer security.Sanitizer) *EmailRenderer {
	config.PublicSiteURL = strings.TrimRight(config.PublicSiteURL, "/")
	config.MediaBaseURL = strings.TrimRight(config.MediaBaseURL, "/")
	if config.MediaBaseURL == "" {
		config.MediaBaseURL = config.PublicSiteURL
	}
	if config.BrandName == "" {
		config.BrandName = "Mining Discovery"
	}
	return &EmailRenderer{
		config:    config,
		sanitizer: sanitizer,
		tmpl:      template.Must(template.New("news").Parse(newsTemplate)),
	}
}

type templateData struct {
	Title      string
	Excerpt    template.HTML
	HeroURL    string
	HeroAlt    string
	ArticleURL string
	LogoURL    string
	BrandName  string
}

// Render は記事のキャンペーン本文HTMLを生成する。
func (r *EmailRenderer) Render(entry *model.ContentEntry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("記事がnilです")
	}

	title := entry.Title
	if title == "" {
		title = "New update"
	}

	excerpt := entry.Excerpt
	if excerpt == "" {
		excerpt = entry.Body
	}

	heroAlt := entry.Cover.Alt
	if heroAlt == "" {
		heroAlt = "Article image"
	}

	data := templateData{
		Title:      title,
		Excerpt:    template.HTML(r.sanitizer.Sanitize(excerpt)),
		HeroURL:    entry.Cover.Resolve(r.config.MediaBaseURL),
		HeroAlt:    heroAlt,
		ArticleURL: r.ArticleURL(entry),
		LogoURL:    r.config.PublicSiteURL + "/image/LOGO%20FOR%20Print.png",
		BrandName:  r.config.BrandName,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("メールテンプレートの描画に失敗しました: %w", err)
	}
	return buf.String(), nil
}

// ArticleURL は公開サイト上の記事URLを返す。
func (r *EmailRenderer) ArticleURL(entry *model.ContentEntry) string {
	return r.config.PublicSiteURL + "/news-sections/" + url.PathEscape(entry.Identity())
}

// PreviewText は抜粋（なければ本文）から受信トレイ用のプレーンテキストを抽出する。
// 抽出できない場合はタイトルを返す。
func (r *EmailRenderer) PreviewText(entry *model.ContentEntry) string {
	src := entry.Excerpt
	if src == "" {
		src = entry.Body
	}
	if text := PlainText(src, defaultPreviewLength); text != "" {
		return text
	}
	return entry.Title
}

// PlainText はHTMLからタグを除いたテキストを取り出し、空白を正規化してmaxRunes文字に切り詰める。
// maxRunesが0以下の場合は切り詰めない。
func PlainText(rawHTML string, maxRunes int) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

var _ Renderer = (*EmailRenderer)(nil)
