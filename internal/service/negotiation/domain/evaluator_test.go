package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T, mutate func(*EvaluatorConfig)) *Evaluator {
	t.Helper()
	cfg := DefaultEvaluatorConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewEvaluator(cfg, NewMessageCatalog(1))
}

func historyOf(prices ...float64) []Round {
	rounds := make([]Round, 0, len(prices))
	for _, p := range prices {
		rounds = append(rounds, Round{OfferedPrice: p, Decision: DecisionCounter, Timestamp: time.Now()})
	}
	return rounds
}

func TestEvaluateRejectsLowballWithCounter(t *testing.T) {
	e := newTestEvaluator(t, nil)

	eval := e.Evaluate(600, 60, nil)

	assert.Equal(t, DecisionReject, eval.Decision)
	assert.Equal(t, "below_minimum_acceptable", eval.Reasoning)
	// 第一轮还价固定让 3%
	assert.InDelta(t, 582, eval.CounterOffer, 1e-9)
	assert.InDelta(t, 18, eval.Savings, 1e-9)
	assert.Equal(t, 1, eval.OfferAttempt)
	assert.True(t, eval.CanNegotiate)
	assert.NotEmpty(t, eval.Message)
}

func TestEvaluateAcceptsAtSweetSpot(t *testing.T) {
	e := newTestEvaluator(t, nil)

	// 甜点价 = max(目标价 8125, 原价 92%) = 9200
	eval := e.Evaluate(10000, 9500, nil)

	assert.Equal(t, DecisionAccept, eval.Decision)
	assert.Equal(t, "at_or_above_sweet_spot", eval.Reasoning)
	assert.InDelta(t, 9500, eval.CounterOffer, 1e-9)
	assert.InDelta(t, 500, eval.Savings, 1e-9)
	assert.InDelta(t, 5, eval.DiscountPct, 1e-9)
}

func TestEvaluateCountersWithinWindow(t *testing.T) {
	e := newTestEvaluator(t, nil)

	// 9100 介于 MinAcceptable(9000) 与 SweetSpot(9200) 之间
	eval := e.Evaluate(10000, 9100, nil)

	assert.Equal(t, DecisionCounter, eval.Decision)
	assert.Equal(t, "within_negotiable_window", eval.Reasoning)
	assert.InDelta(t, 9700, eval.CounterOffer, 1e-9)
}

func TestCounterScheduleIsNonIncreasing(t *testing.T) {
	e := newTestEvaluator(t, nil)
	base := 10000.0

	var history []Round
	var counters []float64
	for attempt := 1; attempt <= 4; attempt++ {
		eval := e.Evaluate(base, 100, history)
		counters = append(counters, eval.CounterOffer)
		history = append(history, Round{OfferedPrice: 100, Decision: eval.Decision})
	}

	// 3% / 5% / 7% / MaxDiscountPct
	assert.InDelta(t, 9700, counters[0], 1e-9)
	assert.InDelta(t, 9500, counters[1], 1e-9)
	assert.InDelta(t, 9300, counters[2], 1e-9)
	assert.InDelta(t, 9000, counters[3], 1e-9)
	for i := 1; i < len(counters); i++ {
		assert.LessOrEqual(t, counters[i], counters[i-1])
	}
}

func TestCounterNeverBreaksMinimumPrice(t *testing.T) {
	// 构造一个利润底线高于 3% 折扣价的场景
	e := newTestEvaluator(t, func(cfg *EvaluatorConfig) {
		cfg.CostRatio = 0.9
		cfg.MinimumMarginPct = 10
	})

	// 底线 = 100 * 0.9 * 1.10 = 99，高于 3% 还价 97
	eval := e.Evaluate(100, 50, nil)

	require.Equal(t, DecisionReject, eval.Decision)
	assert.InDelta(t, 99, eval.CounterOffer, 1e-9)
}

func TestCounterRoundsUpToStep(t *testing.T) {
	e := newTestEvaluator(t, func(cfg *EvaluatorConfig) {
		cfg.RoundingStep = 50
	})

	// 10010 * 0.97 = 9709.7，向上取整到 50 的倍数
	eval := e.Evaluate(10010, 100, nil)

	assert.InDelta(t, 9750, eval.CounterOffer, 1e-9)
}

func TestCounterIsCappedAtBasePrice(t *testing.T) {
	e := newTestEvaluator(t, func(cfg *EvaluatorConfig) {
		cfg.RoundingStep = 500
	})

	// 600 * 0.97 = 582，向上取整到 500 的倍数本应是 1000，但不得超过原价
	eval := e.Evaluate(600, 60, nil)

	assert.InDelta(t, 600, eval.CounterOffer, 1e-9)
}

func TestCanNegotiateTracksRoundCap(t *testing.T) {
	e := newTestEvaluator(t, nil)

	assert.True(t, e.Evaluate(10000, 100, historyOf(100, 100, 100)).CanNegotiate)
	assert.False(t, e.Evaluate(10000, 100, historyOf(100, 100, 100, 100)).CanNegotiate)
}

func TestFinalRoundConcessionAcceptsWindowOffer(t *testing.T) {
	e := newTestEvaluator(t, nil)

	// 第 4 轮（最后一轮）落在可议价窗口内的报价直接成交
	eval := e.Evaluate(10000, 9100, historyOf(100, 100, 100))

	assert.Equal(t, DecisionAccept, eval.Decision)
	assert.Equal(t, "final_round_concession", eval.Reasoning)
	assert.InDelta(t, 9100, eval.CounterOffer, 1e-9)
}

func TestExhaustionPolicyAcceptLast(t *testing.T) {
	e := newTestEvaluator(t, func(cfg *EvaluatorConfig) {
		cfg.ExhaustionPolicy = ExhaustionAcceptLast
	})

	// 最后一轮，报价仍低于底线：开启让步策略后按买家价成交
	eval := e.Evaluate(10000, 5000, historyOf(100, 100, 100))

	assert.Equal(t, DecisionAccept, eval.Decision)
	assert.Equal(t, "exhaustion_concession", eval.Reasoning)
	assert.InDelta(t, 5000, eval.CounterOffer, 1e-9)
}

func TestExhaustionPolicyRejectHoldsFloor(t *testing.T) {
	e := newTestEvaluator(t, nil)

	eval := e.Evaluate(10000, 5000, historyOf(100, 100, 100))

	assert.Equal(t, DecisionReject, eval.Decision)
	th := e.Thresholds(10000)
	assert.GreaterOrEqual(t, eval.CounterOffer, th.MinimumPrice)
}

func TestEvaluateInvalidInput(t *testing.T) {
	e := newTestEvaluator(t, nil)

	cases := []struct {
		name        string
		base, offer float64
		wantCounter float64
	}{
		{"nan offer", 600, math.NaN(), 600},
		{"negative offer", 600, -5, 600},
		{"zero offer", 600, 0, 600},
		{"inf offer", 600, math.Inf(1), 600},
		{"invalid base", math.NaN(), 100, 0},
		{"zero base", 0, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := e.Evaluate(tc.base, tc.offer, nil)
			assert.Equal(t, DecisionReject, eval.Decision)
			assert.Equal(t, "invalid_input", eval.Reasoning)
			assert.False(t, eval.CanNegotiate)
			assert.InDelta(t, tc.wantCounter, eval.CounterOffer, 1e-9)
			assert.Zero(t, eval.Savings)
		})
	}
}

func TestEvaluateIsDeterministicForSameSeed(t *testing.T) {
	a := NewEvaluator(DefaultEvaluatorConfig(), NewMessageCatalog(42))
	b := NewEvaluator(DefaultEvaluatorConfig(), NewMessageCatalog(42))

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Evaluate(10000, 9100, nil), b.Evaluate(10000, 9100, nil))
	}
}
