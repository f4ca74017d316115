package imgutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
)

// minQuality より下は画質の劣化に対してサイズがあまり減らないため、縮小に切り替えます。
const (
	minQuality   = 30
	qualityStep  = 15
	maxShrinkRun = 4
)

// ErrCannotFit は品質と解像度を下げても上限に収まらなかったことを示します。
var ErrCannotFit = errors.New("画像を指定サイズ以下に圧縮できませんでした")

// CompressToFit は参照画像（PNG, GIF, JPEG）を limit バイト以下の JPEG にします。
// quality から qualityStep ずつ品質を下げ、minQuality でも収まらなければ縦横を半分にしてやり直します。
func CompressToFit(data []byte, limit, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}

	for shrink := 0; shrink <= maxShrinkRun; shrink++ {
		for q := quality; q >= minQuality; q -= qualityStep {
			out, err := encodeJPEG(img, q)
			if err != nil {
				return nil, err
			}
			if len(out) <= limit {
				return out, nil
			}
		}
		img = halve(img)
	}
	return nil, fmt.Errorf("%w (上限: %d bytes)", ErrCannotFit, limit)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEG へのエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// halve は最近傍法で縦横を半分にします。
func halve(src image.Image) image.Image {
	b := src.Bounds()
	w, h := max(b.Dx()/2, 1), max(b.Dy()/2, 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, src.At(b.Min.X+x*2, b.Min.Y+y*2))
		}
	}
	return dst
}
