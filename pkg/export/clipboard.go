package export

import (
	"strings"

	"github.com/shouni/gemini-site-kit/pkg/domain"
)

// CopyText はクリップボードにコピーするテキストを返します。
// kind が空の場合は3ファイルを見出し付きで連結します。
func CopyText(a domain.WebsiteArtifacts, kind domain.ArtifactKind) string {
	if kind != "" {
		return a.Get(kind)
	}
	var b strings.Builder
	b.WriteString("HTML:\n")
	b.WriteString(a.Markup)
	b.WriteString("\n\nCSS:\n")
	b.WriteString(a.Stylesheet)
	b.WriteString("\n\nJS:\n")
	b.WriteString(a.Script)
	return b.String()
}
