package adapters

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// --- Mocks ---

type mockHTTPClient struct {
	calls     int
	unsafe    bool
	fetchFunc func(ctx context.Context, url string) ([]byte, error)
}

func (m *mockHTTPClient) IsSafeURL(urlStr string) (bool, error) {
	if m.unsafe {
		return false, errors.New("制限されたネットワークへのアクセスを検知")
	}
	return true, nil
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	if m.fetchFunc == nil {
		return nil, errors.New("unexpected fetch")
	}
	return m.fetchFunc(ctx, url)
}

type mockOpener struct {
	files map[string][]byte
	calls int
}

func (m *mockOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	m.calls++
	data, ok := m.files[uri]
	if !ok {
		return nil, errors.New("not found: " + uri)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type mockCache struct {
	data map[string][]byte
}

func (m *mockCache) Get(key string) ([]byte, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *mockCache) Add(key string, value []byte) bool {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return false
}

// pngHeader は http.DetectContentType が image/png と判定する最小のバイト列です。
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
