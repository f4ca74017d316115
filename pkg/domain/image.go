package domain

// MaxPromptRunes はプロンプトとして受け付ける最大文字数です。
const MaxPromptRunes = 10000

// ImageAttachment はデザイン参照用に添付された画像です。
type ImageAttachment struct {
	Data     []byte
	MIMEType string
	Source   string // 読み込み元のパスやURL（履歴表示用）
	FileURI  string // File API にアップロード済みの場合のみ設定される
}

// GenerationParams はリクエスト単位で上書きできる生成パラメータです。
// ゼロ値の項目は GenerationConfig のデフォルトが使われます。
type GenerationParams struct {
	Model             string
	Temperature       *float32
	SystemInstruction string
}

// GenerationRequest は1回の生成要求です。永続化はしません。
type GenerationRequest struct {
	Prompt string
	Image  *ImageAttachment
	Params GenerationParams
}

// HasImage は画像が添付されているかを返します。
func (r GenerationRequest) HasImage() bool {
	return r.Image != nil && (len(r.Image.Data) > 0 || r.Image.FileURI != "")
}

// GenerationConfig はプロセス全体で共有される生成のデフォルト値です。
type GenerationConfig struct {
	Model             string
	Temperature       float32
	SystemInstruction string
}

// Resolve はリクエスト単位の上書きを適用した設定を返します。
func (c GenerationConfig) Resolve(p GenerationParams) GenerationConfig {
	if p.Model != "" {
		c.Model = p.Model
	}
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.SystemInstruction != "" {
		c.SystemInstruction = p.SystemInstruction
	}
	return c
}
