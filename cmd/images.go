package cmd

import (
	"context"
	"io"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/gemini-site-kit/pkg/adapters"
	"github.com/shouni/gemini-site-kit/pkg/config"
	"github.com/shouni/gemini-site-kit/pkg/domain"
)

// storageOpener は URI のスキームごとにストレージクライアントを1つだけ作り、使い回します。
type storageOpener struct {
	mu       sync.Mutex
	storages map[string]*storage
}

func newStorageOpener() *storageOpener {
	return &storageOpener{storages: make(map[string]*storage)}
}

func storageScheme(uri string) string {
	switch {
	case remoteio.IsGCSURI(uri):
		return "gs"
	case remoteio.IsS3URI(uri):
		return "s3"
	}
	return "local"
}

func (o *storageOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	scheme := storageScheme(uri)
	st, ok := o.storages[scheme]
	if !ok {
		var err error
		if st, err = newStorage(ctx, uri); err != nil {
			return nil, err
		}
		o.storages[scheme] = st
	}
	return st.reader.Open(ctx, uri)
}

func (o *storageOpener) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for scheme, st := range o.storages {
		st.Close()
		delete(o.storages, scheme)
	}
}

// newImageLoader は設定のキャッシュ件数と有効期限で ImageLoader を作ります。
// キャッシュは返した ImageLoader の寿命の間だけ有効です。
func newImageLoader(cfg *config.Config, opener adapters.SourceOpener) (*adapters.ImageLoader, error) {
	cache := expirable.NewLRU[string, []byte](cfg.ImageCacheSize, nil, cfg.ImageCacheTTL)
	return adapters.NewImageLoader(httpkit.New(cfg.HTTPTimeout), opener, cache)
}

// loadImage は1回限りの読み込みです。
func loadImage(ctx context.Context, cfg *config.Config, source string) (*domain.ImageAttachment, error) {
	opener := newStorageOpener()
	defer opener.Close()

	loader, err := newImageLoader(cfg, opener)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, source)
}
