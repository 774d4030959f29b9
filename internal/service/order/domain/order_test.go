// internal/service/order/domain/order_test.go
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder() *Order {
	return &Order{
		ID:            "o-1",
		OrderNo:       "20250601120000001123456",
		Status:        StatusPendingPayment,
		PaymentStatus: PaymentUnpaid,
	}
}

func TestOrderLifecycle(t *testing.T) {
	now := time.Now()
	o := pendingOrder()

	require.NoError(t, o.Pay(now))
	assert.Equal(t, StatusPendingShipment, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	require.NotNil(t, o.PaidAt)

	require.NoError(t, o.Ship(now))
	assert.Equal(t, StatusShipped, o.Status)

	require.NoError(t, o.Complete(now))
	assert.Equal(t, StatusCompleted, o.Status)
	assert.True(t, o.Status.Terminal())
}

func TestPaidOrderCannotBeCancelled(t *testing.T) {
	now := time.Now()
	o := pendingOrder()
	require.NoError(t, o.Pay(now))

	assert.ErrorIs(t, o.Cancel(now), ErrStatusConflict)
}

func TestCancelledOrderAbsorbsTransitions(t *testing.T) {
	now := time.Now()
	o := pendingOrder()
	require.NoError(t, o.Cancel(now))

	assert.ErrorIs(t, o.Pay(now), ErrStatusConflict)
	assert.ErrorIs(t, o.Ship(now), ErrStatusConflict)
	assert.ErrorIs(t, o.Complete(now), ErrStatusConflict)
}

func TestDoublePayIsRejected(t *testing.T) {
	now := time.Now()
	o := pendingOrder()
	require.NoError(t, o.Pay(now))
	assert.ErrorIs(t, o.Pay(now), ErrStatusConflict)
}

func TestNewOrderNoEmbedsTimestampAndUser(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	no := NewOrderNo(at, 1042)

	assert.Len(t, no, 23)
	assert.Equal(t, "20250601123045", no[:14])
	assert.Equal(t, "042", no[14:17])
}
