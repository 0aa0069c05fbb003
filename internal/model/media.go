package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MediaFormat はメディアのリサイズ済みバリアントを表す。
type MediaFormat struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaReference は記事のカバー画像参照を表す。
// CMSが返す文字列形式とオブジェクト形式の両方を境界で1回だけ解釈する。
type MediaReference struct {
	URL     string                 `json:"url,omitempty"`
	Alt     string                 `json:"alternativeText,omitempty"`
	Formats map[string]MediaFormat `json:"formats,omitempty"`
}

// preferredFormats はメール本文で優先するフォーマットの順序。
var preferredFormats = []string{"large", "medium", "small", "thumbnail"}

// IsZero は画像参照が空かどうかを返す。
func (m MediaReference) IsZero() bool {
	if m.URL != "" {
		return false
	}
	for _, f := range m.Formats {
		if f.URL != "" {
			return false
		}
	}
	return true
}

// Resolve はメールクライアント向けの絶対URLを返す。
// フォーマットはlarge→medium→small→thumbnailの順で優先し、なければURLを使う。
// 参照が空の場合は空文字列を返す。
func (m MediaReference) Resolve(mediaBase string) string {
	for _, key := range preferredFormats {
		if f, ok := m.Formats[key]; ok && f.URL != "" {
			return absoluteURL(f.URL, mediaBase)
		}
	}
	if m.URL != "" {
		return absoluteURL(m.URL, mediaBase)
	}
	return ""
}

// UnmarshalJSON は文字列URLまたはメディアオブジェクトを受け付ける。
func (m *MediaReference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = MediaReference{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MediaReference{URL: s}
		return nil
	}
	type plain MediaReference
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = MediaReference(p)
	return nil
}

func absoluteURL(u, base string) string {
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return u
	default:
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
	}
}
