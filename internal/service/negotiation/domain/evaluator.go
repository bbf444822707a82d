// internal/service/negotiation/domain/evaluator.go
package domain

import (
	"math"
	"time"
)

// Decision 是报价评估的三种结果。
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionReject  Decision = "reject"
	DecisionCounter Decision = "counter"
)

// ExhaustionPolicy 决定轮数用尽且买家报价仍低于利润底线时的行为。
type ExhaustionPolicy string

const (
	// ExhaustionReject 坚守利润底线，最后一轮依然拒绝。
	ExhaustionReject ExhaustionPolicy = "reject"
	// ExhaustionAcceptLast 以成交优先，按买家最后的报价成交（可能击穿底线）。
	ExhaustionAcceptLast ExhaustionPolicy = "accept_last"
)

// Round 是一轮已完成的报价记录，追加后不可修改。
type Round struct {
	OfferedPrice float64   `json:"offeredPrice"`
	Decision     Decision  `json:"decision"`
	CounterPrice float64   `json:"counterPrice"`
	Timestamp    time.Time `json:"timestamp"`
}

// EvaluatorConfig 汇集了评估所需的全部阈值参数。
type EvaluatorConfig struct {
	CostRatio            float64
	MinimumMarginPct     float64
	TargetMarginPct      float64
	MaxDiscountPct       float64
	MinDiscountPct       float64
	SweetSpotDiscountPct float64
	RoundCap             int
	RoundingStep         float64
	ExhaustionPolicy     ExhaustionPolicy
}

// DefaultEvaluatorConfig 返回一组经过业务验证的默认阈值。
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		CostRatio:            0.65,
		MinimumMarginPct:     15,
		TargetMarginPct:      25,
		MaxDiscountPct:       10,
		MinDiscountPct:       2,
		SweetSpotDiscountPct: 8,
		RoundCap:             4,
		RoundingStep:         1,
		ExhaustionPolicy:     ExhaustionReject,
	}
}

// Thresholds 是由原价推导出的一组价格阈值。
type Thresholds struct {
	EstimatedCost      float64
	MinimumPrice       float64 // 利润底线，任何情况下不会主动还出更低的价
	TargetPrice        float64
	MinAcceptablePrice float64
	MaxAcceptablePrice float64
	SweetSpotPrice     float64 // 达到该价位直接成交
}

// Evaluation 是一次报价评估的完整结果。评估器永远返回它，从不返回错误。
type Evaluation struct {
	Decision     Decision `json:"decision"`
	CounterOffer float64  `json:"counterOffer"`
	DiscountPct  float64  `json:"discountPct"`
	Savings      float64  `json:"savings"`
	Message      string   `json:"message"`
	Reasoning    string   `json:"reasoning"`
	OfferAttempt int      `json:"offerAttempt"`
	CanNegotiate bool     `json:"canNegotiate"`
}

// Evaluator 是无状态的报价决策器。同样的输入永远给出同样的决策；
// 话术文案的随机性被隔离在注入的 MessageCatalog 里。
type Evaluator struct {
	cfg      EvaluatorConfig
	messages *MessageCatalog
}

func NewEvaluator(cfg EvaluatorConfig, messages *MessageCatalog) *Evaluator {
	if cfg.RoundCap <= 0 {
		cfg.RoundCap = DefaultEvaluatorConfig().RoundCap
	}
	if cfg.RoundingStep <= 0 {
		cfg.RoundingStep = 1
	}
	if cfg.ExhaustionPolicy == "" {
		cfg.ExhaustionPolicy = ExhaustionReject
	}
	return &Evaluator{cfg: cfg, messages: messages}
}

// Config 返回评估器当前生效的阈值配置。
func (e *Evaluator) Config() EvaluatorConfig {
	return e.cfg
}

// Thresholds 由原价推导出本次议价的所有阈值。
func (e *Evaluator) Thresholds(basePrice float64) Thresholds {
	estimatedCost := basePrice * e.cfg.CostRatio
	minimumPrice := estimatedCost * (1 + e.cfg.MinimumMarginPct/100)
	targetPrice := estimatedCost * (1 + e.cfg.TargetMarginPct/100)
	return Thresholds{
		EstimatedCost:      estimatedCost,
		MinimumPrice:       minimumPrice,
		TargetPrice:        targetPrice,
		MinAcceptablePrice: math.Max(minimumPrice, basePrice*(1-e.cfg.MaxDiscountPct/100)),
		MaxAcceptablePrice: basePrice * (1 - e.cfg.MinDiscountPct/100),
		SweetSpotPrice:     math.Max(targetPrice, basePrice*(1-e.cfg.SweetSpotDiscountPct/100)),
	}
}

// Evaluate 对一次报价做出 accept / counter / reject 决策。
// 入参非法时退化为一个安全的终局 reject，绝不 panic、绝不报错，
// 保证议价的交互体验不会因脏数据中断。
func (e *Evaluator) Evaluate(basePrice, offeredPrice float64, history []Round) Evaluation {
	attempt := len(history) + 1
	canNegotiate := len(history) < e.cfg.RoundCap
	finalRound := attempt >= e.cfg.RoundCap

	if !validPrice(basePrice) || !validPrice(offeredPrice) {
		counter := basePrice
		if !validPrice(basePrice) {
			counter = 0
		}
		return Evaluation{
			Decision:     DecisionReject,
			CounterOffer: counter,
			DiscountPct:  0,
			Savings:      0,
			Message:      e.messages.Pick(DecisionReject, true, counter, 0),
			Reasoning:    "invalid_input",
			OfferAttempt: attempt,
			CanNegotiate: false,
		}
	}

	th := e.Thresholds(basePrice)

	switch {
	case offeredPrice < th.MinAcceptablePrice:
		if finalRound && e.cfg.ExhaustionPolicy == ExhaustionAcceptLast {
			// 轮数用尽后的让步成交：有意击穿底线换取转化，需显式开启
			return e.accept(basePrice, offeredPrice, attempt, canNegotiate, "exhaustion_concession")
		}
		counter := e.counterPrice(basePrice, th, attempt)
		return Evaluation{
			Decision:     DecisionReject,
			CounterOffer: counter,
			DiscountPct:  discountPct(basePrice, counter),
			Savings:      basePrice - counter,
			Message:      e.messages.Pick(DecisionReject, finalRound, counter, basePrice-counter),
			Reasoning:    "below_minimum_acceptable",
			OfferAttempt: attempt,
			CanNegotiate: canNegotiate,
		}

	case offeredPrice < th.SweetSpotPrice:
		if len(history) >= e.cfg.RoundCap-1 {
			// 最后一轮允许的还价机会：与其耗尽轮数，不如顺势成交
			return e.accept(basePrice, offeredPrice, attempt, canNegotiate, "final_round_concession")
		}
		counter := e.counterPrice(basePrice, th, attempt)
		return Evaluation{
			Decision:     DecisionCounter,
			CounterOffer: counter,
			DiscountPct:  discountPct(basePrice, counter),
			Savings:      basePrice - counter,
			Message:      e.messages.Pick(DecisionCounter, finalRound, counter, basePrice-counter),
			Reasoning:    "within_negotiable_window",
			OfferAttempt: attempt,
			CanNegotiate: canNegotiate,
		}

	default:
		return e.accept(basePrice, offeredPrice, attempt, canNegotiate, "at_or_above_sweet_spot")
	}
}

func (e *Evaluator) accept(basePrice, offeredPrice float64, attempt int, canNegotiate bool, reasoning string) Evaluation {
	return Evaluation{
		Decision:     DecisionAccept,
		CounterOffer: offeredPrice,
		DiscountPct:  discountPct(basePrice, offeredPrice),
		Savings:      basePrice - offeredPrice,
		Message:      e.messages.Pick(DecisionAccept, false, offeredPrice, basePrice-offeredPrice),
		Reasoning:    reasoning,
		OfferAttempt: attempt,
		CanNegotiate: canNegotiate,
	}
}

// counterPrice 按固定的递进折扣档位生成还价：第 1/2/3 轮分别让 3%/5%/7%，
// 之后固定为 MaxDiscountPct。结果绝不低于利润底线，且向上取整到货币粒度。
func (e *Evaluator) counterPrice(basePrice float64, th Thresholds, attempt int) float64 {
	var pct float64
	switch {
	case attempt <= 1:
		pct = 3
	case attempt == 2:
		pct = 5
	case attempt == 3:
		pct = 7
	default:
		pct = e.cfg.MaxDiscountPct
	}
	if pct > e.cfg.MaxDiscountPct {
		pct = e.cfg.MaxDiscountPct
	}

	price := basePrice * (1 - pct/100)
	if price < th.MinimumPrice {
		price = th.MinimumPrice
	}
	// 只向上取整，向下取整会击穿利润底线
	price = math.Ceil(price/e.cfg.RoundingStep) * e.cfg.RoundingStep
	if price > basePrice {
		price = basePrice
	}
	return price
}

func discountPct(basePrice, price float64) float64 {
	if basePrice <= 0 {
		return 0
	}
	return (basePrice - price) / basePrice * 100
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
