package domain

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactKind は生成される3つのファイルのどれかを表します。
type ArtifactKind string

const (
	KindMarkup     ArtifactKind = "html"
	KindStylesheet ArtifactKind = "css"
	KindScript     ArtifactKind = "js"
)

// ArtifactKinds はエクスポートや表示で使う標準の並び順です。
var ArtifactKinds = []ArtifactKind{KindMarkup, KindStylesheet, KindScript}

// ParseArtifactKind は CLI などから渡された文字列を ArtifactKind に変換します。
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html", "markup":
		return KindMarkup, nil
	case "css", "stylesheet", "style":
		return KindStylesheet, nil
	case "js", "script", "javascript":
		return KindScript, nil
	}
	return "", fmt.Errorf("不明なアーティファクト種別です: %q", s)
}

// FileName はアーカイブやコードビューで使うファイル名を返します。
func (k ArtifactKind) FileName() string {
	switch k {
	case KindMarkup:
		return "index.html"
	case KindStylesheet:
		return "styles.css"
	case KindScript:
		return "script.js"
	}
	return ""
}

// WebsiteArtifacts は生成された Web サイトを構成する3つのテキストです。
// 内容の構文は検証しません。
type WebsiteArtifacts struct {
	Markup     string `json:"markup"`
	Stylesheet string `json:"stylesheet"`
	Script     string `json:"script"`
}

// Get は指定された種別のテキストを返します。
func (a WebsiteArtifacts) Get(kind ArtifactKind) string {
	switch kind {
	case KindMarkup:
		return a.Markup
	case KindStylesheet:
		return a.Stylesheet
	case KindScript:
		return a.Script
	}
	return ""
}

// With は1つのフィールドだけを置き換えたコピーを返します。
// コードビューでの手動編集はフィールド全体の置き換えとして扱います。
func (a WebsiteArtifacts) With(kind ArtifactKind, content string) WebsiteArtifacts {
	switch kind {
	case KindMarkup:
		a.Markup = content
	case KindStylesheet:
		a.Stylesheet = content
	case KindScript:
		a.Script = content
	}
	return a
}

// PlaceholderArtifacts は生成前のワークスペースに表示する初期値です。
func PlaceholderArtifacts() WebsiteArtifacts {
	return WebsiteArtifacts{
		Markup:     "<!-- Generate を実行するとここにHTMLが表示されます -->",
		Stylesheet: "/* スタイルはここに表示されます */",
		Script:     "// スクリプトはここに表示されます",
	}
}

// HistoryEntry は生成に成功した1回分の記録です。
type HistoryEntry struct {
	ID        string           `json:"id"`
	Prompt    string           `json:"prompt"`
	CreatedAt time.Time        `json:"createdAt"`
	Artifacts WebsiteArtifacts `json:"artifacts"`
	ImageRef  string           `json:"imageRef,omitempty"` // 添付画像の参照元（パスやURI）
}
