// internal/service/negotiation/domain/messages.go
package domain

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
)

// messageKey 以 (决策类型, 是否最后一轮) 为维度索引话术模板。
type messageKey struct {
	decision   Decision
	finalRound bool
}

// MessageCatalog 是议价话术的模板库。同一种决策配有若干条语义等价的
// 话术，用注入的随机源挑选一条，让对话不那么机械；随机源可传入固定
// 种子，测试里即可断言出确定的文案。
type MessageCatalog struct {
	mu        sync.Mutex
	rng       *rand.Rand
	templates map[messageKey][]string
}

// NewMessageCatalog 用给定种子构建默认话术库。
func NewMessageCatalog(seed int64) *MessageCatalog {
	return &MessageCatalog{
		rng: rand.New(rand.NewSource(seed)),
		templates: map[messageKey][]string{
			{DecisionAccept, false}: {
				"Deal! %[1]s it is — you just saved %[2]s.",
				"You drive a hard bargain. %[1]s works for us, enjoy the %[2]s off.",
				"Sold at %[1]s! That's %[2]s back in your pocket.",
			},
			{DecisionCounter, false}: {
				"We can't quite do that, but how about %[1]s? You'd still save %[2]s.",
				"Close! Meet us at %[1]s and it's yours — that's %[2]s off.",
				"That's a bit steep for us. %[1]s is the best we can offer right now.",
			},
			{DecisionCounter, true}: {
				"Last call: %[1]s, take it or leave it. That's still %[2]s off.",
				"This is our final offer — %[1]s. We can't go any lower.",
			},
			{DecisionReject, false}: {
				"Sorry, that's below what we can sell for. We could do %[1]s though.",
				"We'd love to make a deal, but not at that price. How about %[1]s?",
				"That one's too low for us. Our counter: %[1]s.",
			},
			{DecisionReject, true}: {
				"We can't make that work, even on the last round. %[1]s is our floor.",
				"Sorry — no deal at that price. %[1]s stands as our final offer.",
			},
		},
	}
}

// Pick 选出一条渲染好的话术。counter 与 savings 分别替入 %[1]s 与 %[2]s。
func (c *MessageCatalog) Pick(decision Decision, finalRound bool, counter, savings float64) string {
	key := messageKey{decision: decision, finalRound: finalRound}
	candidates, ok := c.templates[key]
	if !ok {
		// 最后一轮没有专属话术的决策类型回落到普通话术
		candidates = c.templates[messageKey{decision: decision}]
	}
	if len(candidates) == 0 {
		return ""
	}

	c.mu.Lock()
	tpl := candidates[c.rng.Intn(len(candidates))]
	c.mu.Unlock()

	return fmt.Sprintf(tpl, FormatPrice(counter), FormatPrice(savings))
}

// FormatPrice 输出带千分位的价格文案，例如 12500 -> "12,500"。
// 小数部分只在非整数金额时保留两位。
func FormatPrice(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	whole := int64(v)
	frac := v - float64(whole)

	digits := strconv.FormatInt(whole, 10)
	var grouped []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, d)
	}

	out := string(grouped)
	if frac > 1e-9 {
		out += strconv.FormatFloat(frac, 'f', 2, 64)[1:] // 去掉前导 0
	}
	if neg {
		out = "-" + out
	}
	return out
}
