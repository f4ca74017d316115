package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const validJSON = `{"markup":"<html><body>Hi</body></html>","stylesheet":"body{}","script":"console.log(1)"}`

func newTestInvoker(t *testing.T, client ContentGenerator, timer *fakeTimer, opts ...InvokerOption) *Invoker {
	t.Helper()
	base := []InvokerOption{
		WithJitter(fixedJitter(500 * time.Millisecond)),
		WithTimer(func() backoff.Timer { return timer }),
	}
	inv, err := NewInvoker(client, append(base, opts...)...)
	require.NoError(t, err)
	return inv
}

func TestNewInvoker(t *testing.T) {
	t.Run("nilチェック: クライアントがない場合はエラーを返す", func(t *testing.T) {
		_, err := NewInvoker(nil)
		assert.Error(t, err)
	})

	t.Run("試行回数が0以下なら1回に補正される", func(t *testing.T) {
		inv, err := NewInvoker(&mockContentGenerator{}, WithRetryPolicy(RetryPolicy{MaxAttempts: 0}))
		require.NoError(t, err)
		assert.Equal(t, 1, inv.policy.MaxAttempts)
	})
}

func TestInvoker_Invoke(t *testing.T) {
	ctx := context.Background()
	req := ComposeRequest(textRequest("portfolio"), testDefaults())

	t.Run("成功: 1回目で3フィールドがそのまま返る", func(t *testing.T) {
		client := &mockContentGenerator{respond: func(int) (*genai.GenerateContentResponse, error) {
			return textResponse(validJSON), nil
		}}
		timer := newFakeTimer()
		inv := newTestInvoker(t, client, timer)

		got, err := inv.Invoke(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "<html><body>Hi</body></html>", got.Markup)
		assert.Equal(t, "body{}", got.Stylesheet)
		assert.Equal(t, "console.log(1)", got.Script)
		assert.Equal(t, 1, client.Calls())
		assert.Empty(t, timer.Delays())
	})

	t.Run("429が2回続いた後に成功すると、増加する待機を2回挟んで結果を返す", func(t *testing.T) {
		client := &mockContentGenerator{respond: func(call int) (*genai.GenerateContentResponse, error) {
			if call <= 2 {
				return nil, quotaError("Too many requests")
			}
			return textResponse(validJSON), nil
		}}
		timer := newFakeTimer()

		var mu sync.Mutex
		var phases []Phase
		inv := newTestInvoker(t, client, timer, WithObserver(func(tr Transition) {
			mu.Lock()
			phases = append(phases, tr.Phase)
			mu.Unlock()
		}))

		got, err := inv.Invoke(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "body{}", got.Stylesheet)
		assert.Equal(t, 3, client.Calls())

		delays := timer.Delays()
		require.Len(t, delays, 2)
		assert.Equal(t, 2500*time.Millisecond, delays[0])
		assert.Equal(t, 6500*time.Millisecond, delays[1])
		assert.Greater(t, delays[1], delays[0])

		assert.Equal(t, []Phase{PhasePending, PhaseRetrying, PhaseRetrying, PhaseSucceeded}, phases)
	})

	t.Run("日次上限のメッセージで失敗し続けると Daily として分類される", func(t *testing.T) {
		client := &mockContentGenerator{respond: func(int) (*genai.GenerateContentResponse, error) {
			return nil, quotaError("Quota exceeded: daily limit reached")
		}}
		timer := newFakeTimer()
		inv := newTestInvoker(t, client, timer)

		_, err := inv.Invoke(ctx, req)
		require.Error(t, err)

		var ce *ClassifiedError
		require.ErrorAs(t, err, &ce)
		assert.True(t, ce.Quota)
		assert.True(t, ce.Daily)
		assert.Equal(t, KindQuotaDaily, ce.Kind)
		assert.Equal(t, DefaultRetryPolicy().MaxAttempts, client.Calls())
		assert.Len(t, timer.Delays(), DefaultRetryPolicy().MaxAttempts-1)
	})

	t.Run("上限を示さないクォータエラーはレート制限として分類される", func(t *testing.T) {
		client := &mockContentGenerator{respond: func(int) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("googleapi: Error 429: Too Many Requests")
		}}
		inv := newTestInvoker(t, client, newFakeTimer())

		_, err := inv.Invoke(ctx, req)
		ce := AsClassified(err)
		require.NotNil(t, ce)
		assert.Equal(t, KindQuotaRate, ce.Kind)
		assert.True(t, ce.Quota)
		assert.False(t, ce.Daily)
	})

	t.Run("空のレスポンスは再試行せずに失敗する", func(t *testing.T) {
		client := &mockContentGenerator{respond: func(int) (*genai.GenerateContentResponse, error) {
			return textResponse(""), nil
		}}
		timer := newFakeTimer()
		inv := newTestInvoker(t, client, timer)

		_, err := inv.Invoke(ctx, req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyResponse)
		assert.Contains(t, err.Error(), "empty response")
		assert.Equal(t, 1, client.Calls())
		assert.Empty(t, timer.Delays())
	})

	t.Run("クォータ以外のエラーは再試行しない", func(t *testing.T) {
		client := &mockContentGenerator{respond: func(int) (*genai.GenerateContentResponse, error) {
			return nil, genai.APIError{Code: 500, Message: "internal"}
		}}
		inv := newTestInvoker(t, client, newFakeTimer())

		_, err := inv.Invoke(ctx, req)
		ce := AsClassified(err)
		require.NotNil(t, ce)
		assert.Equal(t, KindUpstream, ce.Kind)
		assert.False(t, ce.Quota)
		assert.Equal(t, 1, client.Calls())
	})

	t.Run("JSONでない応答は形式エラーになる", func(t *testing.T) {
		client := &mockContentGenerator{respond: func(int) (*genai.GenerateContentResponse, error) {
			return textResponse("<html>not json</html>"), nil
		}}
		inv := newTestInvoker(t, client, newFakeTimer())

		_, err := inv.Invoke(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidArtifacts)
	})

	t.Run("キャンセル済みの context では Canceled として分類される", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		inv := newTestInvoker(t, &mockContentGenerator{}, newFakeTimer())

		_, err := inv.Invoke(cctx, req)
		ce := AsClassified(err)
		require.NotNil(t, ce)
		assert.Equal(t, KindCanceled, ce.Kind)
	})

	t.Run("組み立て済みのモデル名と設定がそのまま渡される", func(t *testing.T) {
		client := &mockContentGenerator{}
		inv := newTestInvoker(t, client, newFakeTimer())

		_, err := inv.Invoke(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, req.Model, client.lastModel)
		assert.Same(t, req.Config, client.lastConf)
	})
}
