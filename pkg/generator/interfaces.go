package generator

import (
	"context"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

var (
	_ ContentGenerator = (*genai.Models)(nil)
	_ FileUploader     = (*gemini.Client)(nil)
)

// ContentGenerator は Gemini の生成 API 呼び出しを抽象化するインターフェースです。
// genai.Client の Models フィールドがそのままこれを満たします。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// FileUploader は大きな画像を File API へ退避するためのインターフェースです。
// go-gemini-client の gemini.Client がこれを満たします。
type FileUploader interface {
	UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error)
	DeleteFile(ctx context.Context, fileName string) error
}

// SiteGenerator はワークスペース層が利用する統合窓口です。
type SiteGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.WebsiteArtifacts, error)
}

// Observer は Invoker の状態遷移を受け取るコールバックです。
type Observer func(Transition)
