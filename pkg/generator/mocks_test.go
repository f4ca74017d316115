package generator

import (
	"context"
	"sync"
	"time"

	"google.golang.org/genai"
)

// --- Mocks ---

type mockContentGenerator struct {
	mu        sync.Mutex
	calls     int
	lastModel string
	lastConf  *genai.GenerateContentConfig
	lastParts []*genai.Part
	// respond は呼び出し回数（1始まり）ごとの応答を返します
	respond func(call int) (*genai.GenerateContentResponse, error)
}

func (m *mockContentGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.lastModel = model
	m.lastConf = config
	if len(contents) > 0 {
		m.lastParts = contents[0].Parts
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.respond == nil {
		return textResponse(`{"markup":"<html></html>","stylesheet":"","script":""}`), nil
	}
	return m.respond(call)
}

func (m *mockContentGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockUploader struct {
	uploadCalled bool
	deleteCalled bool
	lastFileName string
	uploadErr    error
}

func (m *mockUploader) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error) {
	m.uploadCalled = true
	if m.uploadErr != nil {
		return "", "", m.uploadErr
	}
	return "https://gemini.api/files/new-file-id", "files/new-file-id", nil
}

func (m *mockUploader) DeleteFile(ctx context.Context, name string) error {
	m.deleteCalled = true
	m.lastFileName = name
	return nil
}

// fakeTimer は待機時間を記録し、すぐに発火する Timer です。
type fakeTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	ch     chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{ch: make(chan time.Time, 16)}
}

func (f *fakeTimer) Start(d time.Duration) {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	f.ch <- time.Now()
}

func (f *fakeTimer) Stop() {}

func (f *fakeTimer) C() <-chan time.Time { return f.ch }

func (f *fakeTimer) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

// --- Helpers ---

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func quotaError(msg string) error {
	return genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: msg}
}

func fixedJitter(d time.Duration) JitterFunc {
	return func(time.Duration) time.Duration { return d }
}
