package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

const archiveContentType = "application/zip"

// OutputWriter は書き出し先を抽象化するインターフェースです。
// go-remote-io の remoteio.OutputWriter がこれを満たし、ローカルパス・gs://・s3:// に対応します。
type OutputWriter interface {
	Write(ctx context.Context, uri string, contentReader io.Reader, contentType string) error
}

var _ OutputWriter = (*remoteio.UniversalIOWriter)(nil)

// Exporter は成果物を zip にして書き出します。
type Exporter struct {
	writer OutputWriter
}

// NewExporter は依存関係を注入して Exporter を初期化します。
func NewExporter(writer OutputWriter) (*Exporter, error) {
	if writer == nil {
		return nil, fmt.Errorf("writer is required")
	}
	return &Exporter{writer: writer}, nil
}

// Export は dest に zip を書き出し、実際の書き出し先を返します。
// dest が空または "/" で終わる場合は DefaultArchiveName を付けます。
func (e *Exporter) Export(ctx context.Context, dest string, a domain.WebsiteArtifacts) (string, error) {
	target := ResolveDestination(dest)

	data, err := Archive(a)
	if err != nil {
		return "", err
	}
	if err := e.writer.Write(ctx, target, bytes.NewReader(data), archiveContentType); err != nil {
		return "", fmt.Errorf("アーカイブの書き出しに失敗しました (%s): %w", target, err)
	}
	slog.InfoContext(ctx, "アーカイブを書き出しました", "dest", target, "size", len(data))
	return target, nil
}

// ResolveDestination は書き出し先の URI を決めます。
func ResolveDestination(dest string) string {
	dest = strings.TrimSpace(dest)
	switch {
	case dest == "":
		return DefaultArchiveName
	case strings.HasSuffix(dest, "/"):
		return dest + DefaultArchiveName
	case path.Ext(dest) == "":
		return dest + "/" + DefaultArchiveName
	}
	return dest
}
