package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"google.golang.org/genai"
)

// responseText はレスポンスからテキストを取り出します。
// テキストが空の場合は ErrEmptyResponse を返し、異常な FinishReason があれば理由を添えます。
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	text := resp.Text()
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	// 安全フィルター等によるブロックの確認
	candidate := resp.Candidates[0]
	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return "", fmt.Errorf("%w (FinishReason: %s)", ErrEmptyResponse, candidate.FinishReason)
	}
	return "", ErrEmptyResponse
}

// ParseArtifacts はモデルが返した JSON テキストを WebsiteArtifacts に変換します。
// 欠けているフィールドや null は空文字列として扱い、文字列以外の値はエラーにします。
func ParseArtifacts(text string) (*domain.WebsiteArtifacts, error) {
	body := stripCodeFence(strings.TrimSpace(text))
	if body == "" {
		return nil, ErrEmptyResponse
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifacts, err)
	}

	var out domain.WebsiteArtifacts
	targets := []struct {
		name string
		dst  *string
	}{
		{FieldMarkup, &out.Markup},
		{FieldStylesheet, &out.Stylesheet},
		{FieldScript, &out.Script},
	}
	for _, t := range targets {
		raw, ok := fields[t.name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		if err := json.Unmarshal(raw, t.dst); err != nil {
			return nil, fmt.Errorf("%w: フィールド %q が文字列ではありません", ErrInvalidArtifacts, t.name)
		}
	}
	return &out, nil
}

// stripCodeFence は ```json ... ``` で囲まれた応答から中身を取り出します。
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
