package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shouni/gemini-site-kit/pkg/domain"
)

// DefaultArchiveName はダウンロード時の既定のファイル名です。
const DefaultArchiveName = "website-project.zip"

// ErrMissingFile はアーカイブに必要なファイルが含まれていないことを示します。
var ErrMissingFile = errors.New("アーカイブに必要なファイルがありません")

// archiveModTime は毎回同じバイト列を出力するための固定の更新日時です。
var archiveModTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// WriteArchive は index.html, styles.css, script.js の3ファイルだけを含む zip を書き出します。
func WriteArchive(w io.Writer, a domain.WebsiteArtifacts) error {
	zw := zip.NewWriter(w)
	for _, kind := range domain.ArtifactKinds {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     kind.FileName(),
			Method:   zip.Deflate,
			Modified: archiveModTime,
		})
		if err != nil {
			return fmt.Errorf("%s の追加に失敗しました: %w", kind.FileName(), err)
		}
		if _, err := io.WriteString(fw, a.Get(kind)); err != nil {
			return fmt.Errorf("%s の書き込みに失敗しました: %w", kind.FileName(), err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("アーカイブの作成に失敗しました: %w", err)
	}
	return nil
}

// Archive は zip のバイト列を返します。
func Archive(a domain.WebsiteArtifacts) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteArchive(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadArchive は WriteArchive で作成した zip から WebsiteArtifacts を読み戻します。
func ReadArchive(data []byte) (domain.WebsiteArtifacts, error) {
	var out domain.WebsiteArtifacts
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return out, fmt.Errorf("アーカイブを開けませんでした: %w", err)
	}

	found := make(map[domain.ArtifactKind]bool, len(domain.ArtifactKinds))
	for _, f := range zr.File {
		kind, ok := kindByFileName(f.Name)
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return out, fmt.Errorf("%s を開けませんでした: %w", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return out, fmt.Errorf("%s の読み込みに失敗しました: %w", f.Name, err)
		}
		out = out.With(kind, string(body))
		found[kind] = true
	}

	var missing []string
	for _, kind := range domain.ArtifactKinds {
		if !found[kind] {
			missing = append(missing, kind.FileName())
		}
	}
	if len(missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrMissingFile, strings.Join(missing, ", "))
	}
	return out, nil
}

func kindByFileName(name string) (domain.ArtifactKind, bool) {
	for _, kind := range domain.ArtifactKinds {
		if kind.FileName() == name {
			return kind, true
		}
	}
	return "", false
}
