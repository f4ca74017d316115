package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// 入力チェックのエラー
	ErrEmptyPrompt   = errors.New("プロンプトを入力するか、画像を添付してください")
	ErrPromptTooLong = fmt.Errorf("プロンプトが長すぎます（最大 %d 文字）", domain.MaxPromptRunes)

	// 応答のエラー
	ErrEmptyResponse    = errors.New("AIから空のレスポンス（empty response）が返されました。別のプロンプトを試してください")
	ErrInvalidArtifacts = errors.New("AIのレスポンスが markup/stylesheet/script の形式になっていません")
)

// RateLimitRetryAfter は分単位のレート制限に当たったときに案内する待ち時間です。
const RateLimitRetryAfter = 60 * time.Second

// QuotaDocsURL は利用上限と課金の説明ページです。
const QuotaDocsURL = "https://ai.google.dev/gemini-api/docs/rate-limits"

// dailyResetZone は無料枠の日次リセットの基準タイムゾーンです。
const dailyResetZone = "America/Los_Angeles"

// ErrorKind はユーザーへの案内方法を決めるためのエラー分類です。
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindInvalidInput
	KindQuotaRate
	KindQuotaDaily
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindQuotaRate:
		return "quota_rate"
	case KindQuotaDaily:
		return "quota_daily"
	case KindCanceled:
		return "canceled"
	}
	return "upstream"
}

// ClassifiedError は生成失敗をユーザー向けに分類したエラーです。
// 永続化はせず、新しい試行のたびに置き換えられます。
type ClassifiedError struct {
	Kind    ErrorKind
	Message string
	Quota   bool
	Daily   bool
	Err     error
}

func (e *ClassifiedError) Error() string { return e.Message }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Advice は再試行のための案内文を返します。
func (e *ClassifiedError) Advice(now time.Time) string {
	switch e.Kind {
	case KindQuotaDaily:
		return fmt.Sprintf("本日の無料枠を使い切りました。%s にリセットされます。上限の詳細: %s",
			NextDailyReset(now).Format("2006-01-02 15:04 MST"), QuotaDocsURL)
	case KindQuotaRate:
		return fmt.Sprintf("リクエストが集中しています。約%d秒後に再試行してください。", int(RateLimitRetryAfter.Seconds()))
	case KindInvalidInput:
		return "入力内容を確認してください。"
	case KindCanceled:
		return "生成は中断されました。"
	}
	return "しばらくしてから再試行してください。"
}

// NextDailyReset は now の次に来る基準タイムゾーンの午前0時を返します。
func NextDailyReset(now time.Time) time.Time {
	loc, err := time.LoadLocation(dailyResetZone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

func invalidInput(err error) *ClassifiedError {
	return &ClassifiedError{Kind: KindInvalidInput, Message: err.Error(), Err: err}
}

// AsClassified は err を ClassifiedError として取り出します。
// 分類済みでないエラーは上流エラーとして扱います。
func AsClassified(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return classify(err)
}

// classify は終端エラーを分類します。
func classify(err error) *ClassifiedError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Kind: KindCanceled, Message: err.Error(), Err: err}
	}
	// 再試行の対象は isQuotaError のみ。分類ではメッセージ中の "quota" もクォータ扱いにする
	if !isQuotaError(err) && !strings.Contains(strings.ToLower(err.Error()), "quota") {
		return &ClassifiedError{Kind: KindUpstream, Message: err.Error(), Err: err}
	}

	raw := strings.ToLower(upstreamMessage(err))
	if strings.Contains(raw, "limit") || strings.Contains(raw, "exhausted") {
		return &ClassifiedError{
			Kind:    KindQuotaDaily,
			Message: "クォータを超過しました。無料枠は毎日 0:00 (PT) にリセットされます。明日再試行するか、ご自身のAPIキーを利用してください",
			Quota:   true,
			Daily:   true,
			Err:     err,
		}
	}
	return &ClassifiedError{
		Kind:    KindQuotaRate,
		Message: "レート制限に達しました。約60秒後に再試行してください",
		Quota:   true,
		Err:     err,
	}
}

// isQuotaError はクォータ・レート制限を示す一時的なエラーかどうかを判定します。
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		if apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// upstreamMessage はサーバーが返したメッセージ本文を優先して取り出します。
func upstreamMessage(err error) string {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Message != "" {
		return apiErrPtr.Message
	}
	if st, ok := status.FromError(err); ok && st.Message() != "" {
		return st.Message()
	}
	return err.Error()
}
