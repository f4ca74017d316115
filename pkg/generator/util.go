package generator

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// JitterFunc は待機時間に加える揺らぎを返します。
type JitterFunc func(max time.Duration) time.Duration

// randomJitter は [0, max) の一様乱数を返します。
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// quotaBackOff は RetryPolicy に従って待機時間を計算する backoff.BackOff 実装です。
// 試行回数の上限に達すると backoff.Stop を返します。
type quotaBackOff struct {
	policy RetryPolicy
	jitter JitterFunc
	n      int
}

var _ backoff.BackOff = (*quotaBackOff)(nil)

func newQuotaBackOff(policy RetryPolicy, jitter JitterFunc) *quotaBackOff {
	if jitter == nil {
		jitter = randomJitter
	}
	return &quotaBackOff{policy: policy, jitter: jitter}
}

func (b *quotaBackOff) Reset() { b.n = 0 }

func (b *quotaBackOff) NextBackOff() time.Duration {
	if b.n >= b.policy.MaxAttempts-1 {
		return backoff.Stop
	}
	d := backoffDelay(b.policy, b.n) + b.jitter(b.policy.MaxJitter)
	b.n++
	return d
}

// backoffDelay は揺らぎを含まない n 回目（0始まり）の待機時間です。
func backoffDelay(policy RetryPolicy, n int) time.Duration {
	return time.Duration(math.Pow(policy.Base, float64(n)) * float64(policy.Scale))
}

// timerFactory は呼び出しごとに新しい Timer を生成します。
type timerFactory func() backoff.Timer

// realTimer は time.Timer による backoff.Timer 実装です。
type realTimer struct {
	timer *time.Timer
}

func newRealTimer() backoff.Timer { return &realTimer{} }

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}
