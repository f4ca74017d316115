package preview

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shouni/gemini-site-kit/pkg/domain"
)

const (
	// SandboxPolicy はプレビューを表示する iframe の sandbox 属性値です。
	// スクリプト・モーダル・フォーム送信は許可し、トップレベルの遷移や同一オリジン扱いは許可しません。
	SandboxPolicy = "allow-scripts allow-modals allow-forms"
	// ContentSecurityPolicy はプレビューを直接配信するときの CSP ヘッダー値です。
	ContentSecurityPolicy = "sandbox " + SandboxPolicy
)

var (
	headCloseRe   = regexp.MustCompile(`(?i)</head\s*>`)
	bodyCloseRe   = regexp.MustCompile(`(?i)</body\s*>`)
	scriptCloseRe = regexp.MustCompile(`(?i)</(script)`)
	styleCloseRe  = regexp.MustCompile(`(?i)</(style)`)
)

const errorTrap = `window.addEventListener('error', function (e) {
  console.error('[preview] ' + e.message + ' (' + e.filename + ':' + e.lineno + ':' + e.colno + ')');
});
`

// Compose は3つの成果物を1つの HTML 文書にまとめます。
// スタイルは最初の </head> の直前（なければ先頭）、スクリプトは最初の </body> の直前（なければ末尾）に入ります。
func Compose(a domain.WebsiteArtifacts) string {
	style := StyleBlock(a.Stylesheet)
	script := ScriptBlock(a.Script)
	markup := a.Markup

	type insertion struct {
		at   int
		text string
	}
	var ins []insertion
	prefix, suffix := "", ""

	if loc := headCloseRe.FindStringIndex(markup); loc != nil {
		ins = append(ins, insertion{loc[0], style})
	} else {
		prefix = style
	}
	if loc := bodyCloseRe.FindStringIndex(markup); loc != nil {
		ins = append(ins, insertion{loc[0], script})
	} else {
		suffix = script
	}
	sort.SliceStable(ins, func(i, j int) bool { return ins[i].at < ins[j].at })

	var b strings.Builder
	b.Grow(len(markup) + len(style) + len(script))
	b.WriteString(prefix)
	last := 0
	for _, in := range ins {
		b.WriteString(markup[last:in.at])
		b.WriteString(in.text)
		last = in.at
	}
	b.WriteString(markup[last:])
	b.WriteString(suffix)
	return b.String()
}

// StyleBlock はスタイルシートを <style> 要素にします。
func StyleBlock(css string) string {
	return "<style>" + styleCloseRe.ReplaceAllString(css, `<\/$1`) + "</style>"
}

// ScriptBlock はスクリプトを、エラーを記録するハンドラーと try/catch で囲んだ <script> 要素にします。
// 本文中の </script は <\/script に置き換え、要素が途中で閉じないようにします。
func ScriptBlock(js string) string {
	var b strings.Builder
	b.WriteString("<script>\n")
	b.WriteString(errorTrap)
	b.WriteString("try {\n")
	b.WriteString(scriptCloseRe.ReplaceAllString(js, `<\/$1`))
	b.WriteString("\n} catch (err) {\n  console.error('[preview] uncaught error:', err);\n}\n</script>")
	return b.String()
}
