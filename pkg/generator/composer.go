package generator

import (
	"strings"
	"unicode/utf8"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"google.golang.org/genai"
)

// Validate はリクエストを組み立てる前の入力チェックです。
// 画像がない場合、空白だけのプロンプトは受け付けません。
func Validate(req domain.GenerationRequest) error {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && !req.HasImage() {
		return invalidInput(ErrEmptyPrompt)
	}
	if utf8.RuneCountInString(req.Prompt) > domain.MaxPromptRunes {
		return invalidInput(ErrPromptTooLong)
	}
	return nil
}

// ComposeRequest はユーザー入力と設定から Gemini へのリクエストを組み立てます。
// 副作用はなく、入力の検証は呼び出し元が Validate で済ませている前提です。
func ComposeRequest(req domain.GenerationRequest, defaults domain.GenerationConfig) *Request {
	cfg := defaults.Resolve(req.Params)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	systemInstruction := cfg.SystemInstruction
	if systemInstruction == "" {
		systemInstruction = DefaultSystemInstruction
	}

	return &Request{
		Model:    cfg.Model,
		Contents: []*genai.Content{genai.NewContentFromParts(composeParts(req), genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
			Temperature:       genai.Ptr(cfg.Temperature),
			ResponseMIMEType:  responseMIMEType,
			ResponseSchema:    ResponseSchema(),
		},
	}
}

func composeParts(req domain.GenerationRequest) []*genai.Part {
	if !req.HasImage() {
		return []*genai.Part{genai.NewPartFromText(textPromptPrefix + req.Prompt)}
	}

	text := req.Prompt
	if strings.TrimSpace(text) == "" {
		text = imageFallbackPrompt
	}
	return []*genai.Part{imagePart(req.Image), genai.NewPartFromText(text)}
}

// imagePart はアップロード済みなら FileData、そうでなければ元のバイト列を InlineData にします。
func imagePart(img *domain.ImageAttachment) *genai.Part {
	if img.FileURI != "" {
		return genai.NewPartFromURI(img.FileURI, img.MIMEType)
	}
	return genai.NewPartFromBytes(img.Data, img.MIMEType)
}
