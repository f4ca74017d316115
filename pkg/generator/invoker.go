package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shouni/gemini-site-kit/pkg/domain"
)

// Invoker は組み立て済みリクエストを Gemini に送り、クォータエラー時は待機して再試行します。
// 状態は呼び出しごとに閉じているため、複数の Invoke を並行して実行できます。
type Invoker struct {
	client   ContentGenerator
	policy   RetryPolicy
	jitter   JitterFunc
	newTimer timerFactory
	observer Observer
}

// InvokerOption は Invoker の設定を行うための関数型です。
type InvokerOption func(*Invoker)

// WithRetryPolicy は試行回数と待機時間の計算式を設定します。
func WithRetryPolicy(p RetryPolicy) InvokerOption {
	return func(i *Invoker) {
		i.policy = p
	}
}

// WithJitter は待機時間に加える揺らぎの計算を差し替えます。
func WithJitter(fn JitterFunc) InvokerOption {
	return func(i *Invoker) {
		i.jitter = fn
	}
}

// WithTimer は待機に使う Timer の生成関数を差し替えます。
// テストで実時間を待たずに待機時間だけを検証するために使います。
func WithTimer(fn func() backoff.Timer) InvokerOption {
	return func(i *Invoker) {
		i.newTimer = fn
	}
}

// WithObserver は状態遷移の通知先を設定します。
func WithObserver(o Observer) InvokerOption {
	return func(i *Invoker) {
		i.observer = o
	}
}

// NewInvoker は依存関係を注入して Invoker を初期化します。
func NewInvoker(client ContentGenerator, opts ...InvokerOption) (*Invoker, error) {
	if client == nil {
		return nil, fmt.Errorf("client (ContentGenerator) is required")
	}
	inv := &Invoker{
		client:   client,
		policy:   DefaultRetryPolicy(),
		jitter:   randomJitter,
		newTimer: newRealTimer,
	}
	for _, opt := range opts {
		opt(inv)
	}
	if inv.policy.MaxAttempts < 1 {
		inv.policy.MaxAttempts = 1
	}
	return inv, nil
}

// Invoke はリクエストを実行し、検証済みの WebsiteArtifacts を返します。
// 失敗時は必ず *ClassifiedError を返します。
func (i *Invoker) Invoke(ctx context.Context, req *Request) (*domain.WebsiteArtifacts, error) {
	if req == nil {
		return nil, classify(fmt.Errorf("request is required"))
	}

	attempt := 0
	i.notify(Transition{Phase: PhasePending})

	op := func() (*domain.WebsiteArtifacts, error) {
		attempt++
		slog.DebugContext(ctx, "Gemini にサイト生成をリクエストします", "model", req.Model, "attempt", attempt)

		resp, err := i.client.GenerateContent(ctx, req.Model, req.Contents, req.Config)
		if err != nil {
			if isQuotaError(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}

		text, err := responseText(resp)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		artifacts, err := ParseArtifacts(text)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return artifacts, nil
	}

	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "クォータ・レート制限に達しました。待機して再試行します",
			"attempt", attempt, "wait", next, "error", err)
		i.notify(Transition{Phase: PhaseRetrying, Attempt: attempt, Delay: next, Err: err})
	}

	bo := backoff.WithContext(newQuotaBackOff(i.policy, i.jitter), ctx)
	artifacts, err := backoff.RetryNotifyWithTimerAndData(op, bo, notify, i.newTimer())
	if err != nil {
		ce := classify(err)
		slog.ErrorContext(ctx, "サイト生成に失敗しました",
			"attempts", attempt, "kind", ce.Kind.String(), "error", err)
		i.notify(Transition{Phase: PhaseFailed, Attempt: attempt, Err: ce})
		return nil, ce
	}

	slog.InfoContext(ctx, "サイト生成が完了しました", "model", req.Model, "attempts", attempt)
	i.notify(Transition{Phase: PhaseSucceeded, Attempt: attempt})
	return artifacts, nil
}

func (i *Invoker) notify(t Transition) {
	if i.observer != nil {
		i.observer(t)
	}
}
