// internal/service/promotion/domain/promotion.go
package domain

import (
	"context"
	"time"
)

// DiscountType 定义优惠类型。
type DiscountType string

const (
	DiscountAmountOff  DiscountType = "AMOUNT_OFF"  // 满减
	DiscountPercentOff DiscountType = "PERCENT_OFF" // 折扣
)

// Promotion 是一条满减/折扣活动的不可变定义。
// 金额一律为最小货币单位的整数。
type Promotion struct {
	ID              uint64
	Name            string
	Type            DiscountType
	ThresholdAmount int64  // 订单小计达到该值才可用
	DiscountAmount  int64  // AMOUNT_OFF 的立减金额
	DiscountPercent int    // PERCENT_OFF 的折扣百分比 (1-99)
	EligibilityExpr string // 可选的 CEL 资格表达式，空串表示无附加条件
	StartAt         time.Time
	EndAt           time.Time
	Enabled         bool
}

// Discount 计算该活动对给定小计的优惠额。
// 折扣向下取整；优惠额不超过小计本身。
func (p *Promotion) Discount(subtotal int64) int64 {
	var d int64
	switch p.Type {
	case DiscountAmountOff:
		d = p.DiscountAmount
	case DiscountPercentOff:
		d = subtotal * int64(p.DiscountPercent) / 100
	}
	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ActiveAt 检查活动在给定时刻是否生效。
func (p *Promotion) ActiveAt(now time.Time) bool {
	return p.Enabled && !now.Before(p.StartAt) && now.Before(p.EndAt)
}

// Fact 是资格规则的求值输入。
type Fact struct {
	Subtotal  int64
	ItemCount int
	UserID    uint64
}

// RuleEngine 对活动的资格表达式求值，由基础设施层实现。
type RuleEngine interface {
	Evaluate(expr string, fact Fact) (bool, error)
}

// Repository 是活动的读取端口。
type Repository interface {
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
}

// Selector 实现活动选取策略：每单至多一个活动，
// 在所有满足门槛与资格的活动中取门槛最高者，门槛相同取优惠更大者。
// 选取与舍入规则是可配置策略而非硬编码：换一个 Selector 即换一套规则。
type Selector struct {
	engine RuleEngine
}

func NewSelector(engine RuleEngine) *Selector { return &Selector{engine: engine} }

// Pick 返回选中的活动；没有符合条件的活动返回 nil。
// 资格表达式求值失败的活动按不可用处理，不让脏规则打断下单。
func (s *Selector) Pick(promos []Promotion, fact Fact, now time.Time) *Promotion {
	var best *Promotion
	for i := range promos {
		p := &promos[i]
		if !p.ActiveAt(now) || p.ThresholdAmount > fact.Subtotal {
			continue
		}
		if p.EligibilityExpr != "" && s.engine != nil {
			ok, err := s.engine.Evaluate(p.EligibilityExpr, fact)
			if err != nil || !ok {
				continue
			}
		}
		if best == nil ||
			p.ThresholdAmount > best.ThresholdAmount ||
			(p.ThresholdAmount == best.ThresholdAmount && p.Discount(fact.Subtotal) > best.Discount(fact.Subtotal)) {
			best = p
		}
	}
	return best
}
