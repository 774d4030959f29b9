package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func activePromo(id uint64, typ DiscountType, threshold, amount int64, percent int) Promotion {
	return Promotion{
		ID:              id,
		Type:            typ,
		ThresholdAmount: threshold,
		DiscountAmount:  amount,
		DiscountPercent: percent,
		StartAt:         time.Now().Add(-time.Hour),
		EndAt:           time.Now().Add(time.Hour),
		Enabled:         true,
	}
}

func TestAmountOffDiscount(t *testing.T) {
	p := activePromo(1, DiscountAmountOff, 5000, 1000, 0)
	assert.Equal(t, int64(1000), p.Discount(10000))
}

func TestPercentOffFloorsDown(t *testing.T) {
	p := activePromo(1, DiscountPercentOff, 0, 0, 15)
	// 999 * 15% = 149.85 -> 149
	assert.Equal(t, int64(149), p.Discount(999))
}

func TestDiscountClampedToSubtotal(t *testing.T) {
	p := activePromo(1, DiscountAmountOff, 0, 5000, 0)
	assert.Equal(t, int64(3000), p.Discount(3000))
}

func TestSelectorPicksHighestQualifyingThreshold(t *testing.T) {
	promos := []Promotion{
		activePromo(1, DiscountAmountOff, 3000, 300, 0),
		activePromo(2, DiscountAmountOff, 8000, 800, 0),
		activePromo(3, DiscountAmountOff, 20000, 3000, 0), // 门槛未达
	}
	s := NewSelector(nil)
	picked := s.Pick(promos, Fact{Subtotal: 10000}, time.Now())
	assert.NotNil(t, picked)
	assert.Equal(t, uint64(2), picked.ID)
}

func TestSelectorSkipsInactiveAndNilWhenNoneQualify(t *testing.T) {
	expired := activePromo(1, DiscountAmountOff, 0, 100, 0)
	expired.EndAt = time.Now().Add(-time.Minute)
	disabled := activePromo(2, DiscountAmountOff, 0, 100, 0)
	disabled.Enabled = false

	s := NewSelector(nil)
	assert.Nil(t, s.Pick([]Promotion{expired, disabled}, Fact{Subtotal: 10000}, time.Now()))
}

type rejectAllEngine struct{}

func (rejectAllEngine) Evaluate(string, Fact) (bool, error) { return false, nil }

func TestSelectorHonorsEligibilityRule(t *testing.T) {
	p := activePromo(1, DiscountAmountOff, 0, 100, 0)
	p.EligibilityExpr = "user_id == 42u"

	s := NewSelector(rejectAllEngine{})
	assert.Nil(t, s.Pick([]Promotion{p}, Fact{Subtotal: 10000}, time.Now()))
}

func TestSelectorTieBreaksOnLargerDiscount(t *testing.T) {
	promos := []Promotion{
		activePromo(1, DiscountAmountOff, 5000, 500, 0),
		activePromo(2, DiscountAmountOff, 5000, 900, 0),
	}
	s := NewSelector(nil)
	picked := s.Pick(promos, Fact{Subtotal: 10000}, time.Now())
	assert.Equal(t, uint64(2), picked.ID)
}
