package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/gemini-site-kit/pkg/generator"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// NewContentGenerator は API キーから genai クライアントを作成し、生成 API を返します。
// 構造化出力のスキーマと温度をリクエスト単位で渡すため、生成には genai の Models を直接使います。
func NewContentGenerator(ctx context.Context, apiKey string) (generator.ContentGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, gemini.ErrAPIKeyRequired
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}
	return client.Models, nil
}

// NewFileUploader は大きな参照画像を File API に退避するためのクライアントを作成します。
func NewFileUploader(ctx context.Context, apiKey string) (generator.FileUploader, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, gemini.ErrAPIKeyRequired
	}
	client, err := gemini.NewClient(ctx, gemini.Config{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("File API クライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}
