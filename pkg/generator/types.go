package generator

import (
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultModel は設定がない場合に利用するモデルです。
	DefaultModel = "gemini-3-flash-preview"
	// DefaultTemperature は設定がない場合のサンプリング温度です。
	DefaultTemperature float32 = 0.7

	// textPromptPrefix は画像なしリクエストのプロンプトに付ける前置きです。
	textPromptPrefix = "Generate a full website for: "
	// imageFallbackPrompt は画像のみ添付された場合に使う指示です。
	imageFallbackPrompt = "Replicate this design as a complete, responsive website."

	responseMIMEType = "application/json"

	FieldMarkup     = "markup"
	FieldStylesheet = "stylesheet"
	FieldScript     = "script"

	// DefaultInlineImageLimit を超える画像は File API 経由か再圧縮で送信します。
	DefaultInlineImageLimit = 7 * 1024 * 1024
	ImageCompressionQuality = 75
)

// DefaultSystemInstruction は出力契約をモデルに伝えるシステム指示です。
const DefaultSystemInstruction = `You are a senior front-end engineer who builds complete, production-quality websites.
Return exactly one JSON object with three string fields and nothing else:
- "markup": the full index.html document. Use semantic HTML5 elements, ARIA labels where useful and standard head metadata. Reference "styles.css" and "script.js".
- "stylesheet": the full styles.css. Mobile-first, responsive (Flexbox/Grid), with a coherent modern color palette.
- "script": the full script.js. Small, clean, functional JavaScript for the page's interactions.
Write realistic, specific copy for the requested business or person. Never use Lorem Ipsum or other filler text.
When images are needed, use https://picsum.photos placeholders with descriptive alt text.`

// ResponseSchema は3つの必須文字列フィールドを持つ構造化出力の契約です。
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			FieldMarkup:     {Type: genai.TypeString, Description: "Complete index.html content"},
			FieldStylesheet: {Type: genai.TypeString, Description: "Complete styles.css content"},
			FieldScript:     {Type: genai.TypeString, Description: "Complete script.js content"},
		},
		Required:         []string{FieldMarkup, FieldStylesheet, FieldScript},
		PropertyOrdering: []string{FieldMarkup, FieldStylesheet, FieldScript},
	}
}

// Request は Gemini に送る直前の組み立て済みリクエストです。
type Request struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// RetryPolicy はクォータエラー時の再試行回数と待機時間の計算式を表します。
// 待機時間は Base^n * Scale + jitter (0 <= jitter < MaxJitter) です。
type RetryPolicy struct {
	MaxAttempts int
	Base        float64
	Scale       time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryPolicy は 2秒, 6秒 ... に最大1秒の揺らぎを加えて最大3回試行します。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Base:        3,
		Scale:       2 * time.Second,
		MaxJitter:   time.Second,
	}
}

// Phase は1回の呼び出しの状態です。
type Phase int

const (
	PhasePending Phase = iota
	PhaseRetrying
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRetrying:
		return "retrying"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Transition は状態遷移の通知内容です。
// Retrying では Attempt に直前に失敗した試行番号（1始まり）、Delay に次の待機時間が入ります。
type Transition struct {
	Phase   Phase
	Attempt int
	Delay   time.Duration
	Err     error
}
