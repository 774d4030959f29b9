// internal/service/order/application/service_test.go
package application

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/lock"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/metrics"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/inventory"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
	promodomain "github.com/Aru0077/shop-service-mysql-sub000/internal/service/promotion/domain"
)

// ---- 内存假件 ----

type memOrders struct {
	mu    sync.Mutex
	byID  map[string]*domain.Order
	logs  []domain.PaymentLog
	sales map[uint64]int
}

func newMemOrders() *memOrders {
	return &memOrders{byID: map[string]*domain.Order{}, sales: map[uint64]int{}}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func (m *memOrders) CreateWithItems(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[order.ID] = cloneOrder(order)
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) FindByOrderNo(_ context.Context, orderNo string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.OrderNo == orderNo {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (m *memOrders) Transition(_ context.Context, order *domain.Order, from domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[order.ID]
	if !ok || cur.Status != from {
		return domain.ErrStatusConflict
	}
	cur.Status = order.Status
	cur.PaymentStatus = order.PaymentStatus
	cur.PaidAt = order.PaidAt
	cur.UpdatedAt = order.UpdatedAt
	return nil
}

func (m *memOrders) MarkPaid(_ context.Context, order *domain.Order, log *domain.PaymentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[order.ID]
	if !ok || cur.Status != domain.StatusPendingPayment {
		return domain.ErrStatusConflict
	}
	cur.Status = order.Status
	cur.PaymentStatus = order.PaymentStatus
	cur.PaidAt = order.PaidAt
	cur.UpdatedAt = order.UpdatedAt
	m.logs = append(m.logs, *log)
	return nil
}

func (m *memOrders) HasPaymentLog(_ context.Context, orderID, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.OrderID == orderID && l.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memOrders) FindPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.byID {
		if o.Status == domain.StatusPendingPayment && o.CreatedAt.Before(cutoff) {
			out = append(out, cloneOrder(o))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memOrders) FindPaidUndeliveredOlderThan(_ context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.byID {
		if (o.Status == domain.StatusPendingShipment || o.Status == domain.StatusShipped) &&
			o.PaidAt != nil && o.PaidAt.Before(cutoff) {
			out = append(out, cloneOrder(o))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memOrders) IncrProductSales(_ context.Context, productID uint64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales[productID] += qty
	return nil
}

type memCheckout struct {
	mu        sync.Mutex
	addresses map[uint64]uint64 // addressID -> userID
	carts     map[uint64]domain.CartItem
	skus      map[uint64]domain.SaleSku
	deleted   int
}

func (m *memCheckout) GetAddress(_ context.Context, addressID, userID uint64) (*domain.AddressSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.addresses[addressID]
	if !ok || owner != userID {
		return nil, domain.ErrAddressNotFound
	}
	return &domain.AddressSnapshot{ReceiverName: "test", Detail: "somewhere"}, nil
}

func (m *memCheckout) GetCartItems(_ context.Context, userID uint64, ids []uint64) ([]domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CartItem
	for _, id := range ids {
		if ci, ok := m.carts[id]; ok && ci.UserID == userID {
			out = append(out, ci)
		}
	}
	return out, nil
}

func (m *memCheckout) DeleteCartItems(_ context.Context, _ uint64, ids []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.carts, id)
	}
	m.deleted += len(ids)
	return nil
}

func (m *memCheckout) GetSaleSkus(_ context.Context, skuIDs []uint64) (map[uint64]domain.SaleSku, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uint64]domain.SaleSku{}
	for _, id := range skuIDs {
		if s, ok := m.skus[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type memInventory struct {
	mu        sync.Mutex
	stock     map[uint64]int
	reserved  map[string]int // orderNo:skuID -> qty
	confirmed map[uint64]int
	released  map[uint64]int
	failSku   uint64 // 预占该 SKU 时返回库存不足
}

func newMemInventory(stock map[uint64]int) *memInventory {
	return &memInventory{
		stock:     stock,
		reserved:  map[string]int{},
		confirmed: map[uint64]int{},
		released:  map[uint64]int{},
	}
}

func invKey(orderNo string, skuID uint64) string {
	return orderNo + ":" + strconv.FormatUint(skuID, 10)
}

func (m *memInventory) Reserve(_ context.Context, skuID uint64, qty int, orderNo string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if skuID == m.failSku || m.stock[skuID] < qty {
		return false, nil
	}
	m.stock[skuID] -= qty
	m.reserved[invKey(orderNo, skuID)] = qty
	return true, nil
}

func (m *memInventory) ConfirmOrder(_ context.Context, orderNo string, lines []inventory.Line) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var applied []uint64
	for _, ln := range lines {
		key := invKey(orderNo, ln.SkuID)
		if _, ok := m.reserved[key]; !ok {
			continue // 已确认过的行, 重放跳过
		}
		delete(m.reserved, key)
		m.confirmed[ln.SkuID] += ln.Qty
		applied = append(applied, ln.SkuID)
	}
	return applied, nil
}

func (m *memInventory) ReleaseOrder(_ context.Context, orderNo string, lines []inventory.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ln := range lines {
		key := invKey(orderNo, ln.SkuID)
		if _, ok := m.reserved[key]; !ok {
			continue
		}
		delete(m.reserved, key)
		m.stock[ln.SkuID] += ln.Qty
		m.released[ln.SkuID] += ln.Qty
	}
	return nil
}

func (m *memInventory) Available(_ context.Context, skuID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[skuID], nil
}

type memMarkers struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	idem     map[string]string
	expireAt map[string]time.Time
	auto     map[string]time.Time
}

func newMemMarkers(clock clockwork.Clock) *memMarkers {
	return &memMarkers{clock: clock, idem: map[string]string{}, expireAt: map[string]time.Time{}, auto: map[string]time.Time{}}
}

func (m *memMarkers) GetIdempotency(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.idem[key]
	return v, ok, nil
}

func (m *memMarkers) PutIdempotency(_ context.Context, key, orderID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idem[key]; !ok {
		m.idem[key] = orderID
	}
	return nil
}

func (m *memMarkers) DeleteIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idem, key)
	return nil
}

func (m *memMarkers) ArmExpire(_ context.Context, orderNo string, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireAt[orderNo] = m.clock.Now().Add(window)
	return nil
}

func (m *memMarkers) DisarmExpire(_ context.Context, orderNo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expireAt, orderNo)
	return nil
}

func (m *memMarkers) ExpireRemaining(_ context.Context, orderNo string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, ok := m.expireAt[orderNo]
	if !ok {
		return 0, false, nil
	}
	remaining := deadline.Sub(m.clock.Now())
	if remaining <= 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

func (m *memMarkers) ArmAutoComplete(_ context.Context, orderNo string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auto[orderNo] = m.clock.Now().Add(ttl)
	return nil
}

type memScheduler struct {
	mu        sync.Mutex
	scheduled []string
}

func (m *memScheduler) SchedulePaymentTimeout(_ context.Context, orderNo string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = append(m.scheduled, orderNo)
	return nil
}

func (m *memScheduler) CancelPaymentTimeout(_ context.Context, _ string) error { return nil }

type memPaid struct {
	mu     sync.Mutex
	events []*domain.OrderPaidEvent
}

func (m *memPaid) PublishOrderPaid(_ context.Context, evt *domain.OrderPaidEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

type stubPromos struct {
	promos []promodomain.Promotion
}

func (s *stubPromos) ListActive(_ context.Context, _ time.Time) ([]promodomain.Promotion, error) {
	return s.promos, nil
}

// ---- 测试装置 ----

type fixture struct {
	svc       *OrderApplicationService
	orders    *memOrders
	checkout  *memCheckout
	inventory *memInventory
	markers   *memMarkers
	scheduler *memScheduler
	paid      *memPaid
	locks     lock.Manager
	clock     clockwork.FakeClock
}

const (
	paymentWindow = 10 * time.Minute
	autoComplete  = 12 * time.Hour
)

func newFixture(t *testing.T, promos []promodomain.Promotion) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := &fixture{
		orders: newMemOrders(),
		checkout: &memCheckout{
			addresses: map[uint64]uint64{10: 1},
			carts: map[uint64]domain.CartItem{
				100: {ID: 100, UserID: 1, ProductID: 7, SkuID: 70, Quantity: 2},
				101: {ID: 101, UserID: 1, ProductID: 8, SkuID: 80, Quantity: 1},
			},
			skus: map[uint64]domain.SaleSku{
				70: {SkuID: 70, ProductID: 7, ProductName: "tea", Price: 3000, OnSale: true},
				80: {SkuID: 80, ProductID: 8, ProductName: "cup", Price: 4000, OnSale: true},
			},
		},
		inventory: newMemInventory(map[uint64]int{70: 10, 80: 10}),
		scheduler: &memScheduler{},
		paid:      &memPaid{},
		locks:     lock.NewMemoryManager(),
		clock:     clock,
	}
	f.markers = newMemMarkers(clock)
	f.svc = NewOrderApplicationService(
		f.orders, f.checkout, &stubPromos{promos: promos}, promodomain.NewSelector(nil),
		f.inventory, f.markers, f.scheduler, f.paid,
		f.locks, clock, noop.NewTracerProvider().Tracer("test"),
		paymentWindow, autoComplete, time.Hour, 10*time.Second,
	)
	return f
}

func (f *fixture) createOrder(t *testing.T) *OrderSummary {
	t.Helper()
	summary, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: 1, AddressID: 10, CartItemIDs: []uint64{100, 101},
	})
	require.NoError(t, err)
	return summary
}

// ---- 用例 ----

func TestCreateOrderHappyPath(t *testing.T) {
	promo := promodomain.Promotion{
		ID: 1, Type: promodomain.DiscountAmountOff,
		ThresholdAmount: 5000, DiscountAmount: 1000, Enabled: true,
		StartAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f := newFixture(t, []promodomain.Promotion{promo})

	summary := f.createOrder(t)

	// 2x3000 + 1x4000 = 10000, 满 5000 减 1000
	assert.Equal(t, int64(10000), summary.TotalAmount)
	assert.Equal(t, int64(1000), summary.DiscountAmount)
	assert.Equal(t, int64(9000), summary.PaymentAmount)
	assert.Equal(t, string(domain.StatusPendingPayment), summary.Status)
	assert.Equal(t, int64(600), summary.TimeoutSeconds)

	// 预占生效, 可售余量下降
	assert.Equal(t, 8, f.inventory.stock[70])
	assert.Equal(t, 9, f.inventory.stock[80])

	// 购物车清空, 延迟任务与到期标记就位
	assert.Empty(t, f.checkout.carts)
	assert.Equal(t, []string{summary.OrderNo}, f.scheduler.scheduled)
	_, armed, _ := f.markers.ExpireRemaining(context.Background(), summary.OrderNo)
	assert.True(t, armed)
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	first := f.createOrder(t)

	// 购物车已清空, 但幂等记录命中时根本不会再读购物车
	second, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: 1, AddressID: 10, CartItemIDs: []uint64{101, 100},
	})
	require.NoError(t, err)
	assert.Equal(t, first.OrderNo, second.OrderNo)
	assert.Len(t, f.orders.byID, 1)
	assert.Equal(t, 8, f.inventory.stock[70], "重复请求不应重复预占")
}

func TestCreateOrderCompensatesOnReserveFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.inventory.stock[80] = 10
	f.inventory.failSku = 80 // 第二个 SKU 预占失败

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: 1, AddressID: 10, CartItemIDs: []uint64{100, 101},
	})

	var short *domain.StockShortError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, uint64(80), short.SkuID)

	// 已预占的第一个 SKU 被释放, 订单以 CANCELLED 落库
	assert.Equal(t, 10, f.inventory.stock[70])
	assert.Equal(t, 2, f.inventory.released[70])
	require.Len(t, f.orders.byID, 1)
	for _, o := range f.orders.byID {
		assert.Equal(t, domain.StatusCancelled, o.Status)
	}
}

func TestCreateOrderRetrySucceedsAfterCompensation(t *testing.T) {
	f := newFixture(t, nil)
	f.inventory.failSku = 80

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: 1, AddressID: 10, CartItemIDs: []uint64{100, 101},
	})
	var short *domain.StockShortError
	require.ErrorAs(t, err, &short)

	// 补货后重试必须开新单, 而不是命中指向已取消订单的幂等记录
	f.inventory.failSku = 0
	summary, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: 1, AddressID: 10, CartItemIDs: []uint64{100, 101},
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusPendingPayment), summary.Status)
	assert.Len(t, f.orders.byID, 2)
	assert.Equal(t, 8, f.inventory.stock[70])
	assert.Equal(t, 9, f.inventory.stock[80])
}

func TestLockDenialCountedOncePerRejectedRequest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	key := "order:create:" + idempotencyKey("cart", 1, "100,101")
	lease, err := f.locks.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	defer lease.Release(ctx)

	before := testutil.ToFloat64(metrics.LockDenials)
	_, err = f.svc.CreateOrder(ctx, CreateOrderCommand{
		UserID: 1, AddressID: 10, CartItemIDs: []uint64{100, 101},
	})
	assert.ErrorIs(t, err, domain.ErrProcessing)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.LockDenials))
}

func TestCreateOrderRejectsOffSaleSku(t *testing.T) {
	f := newFixture(t, nil)
	sku := f.checkout.skus[80]
	sku.OnSale = false
	f.checkout.skus[80] = sku

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: 1, AddressID: 10, CartItemIDs: []uint64{100, 101},
	})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, f.orders.byID)
}

func TestPayOrderMovesToPendingShipment(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)

	result, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, PaymentType: "wechat", TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusPendingShipment), result.Status)

	stored, _ := f.orders.FindByID(context.Background(), summary.OrderID)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaidAt)

	// 支付事件已发布
	require.Len(t, f.paid.events, 1)
	assert.Equal(t, summary.OrderNo, f.paid.events[0].OrderNo)
}

func TestPayOrderIdempotentForSameTransaction(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)
	cmd := PayOrderCommand{OrderID: summary.OrderID, UserID: 1, PaymentType: "wechat", TransactionID: "txn-1"}

	_, err := f.svc.PayOrder(context.Background(), cmd)
	require.NoError(t, err)
	result, err := f.svc.PayOrder(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusPendingShipment), result.Status)

	assert.Len(t, f.orders.logs, 1, "同一交易号重放不应产生第二条流水")
	assert.Len(t, f.paid.events, 1, "同一交易号重放不应重复发布事件")
}

func TestPayOrderRejectsSecondTransaction(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)

	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	require.NoError(t, err)

	_, err = f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-2"})
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
}

func TestPayOrderRefusedAfterWindowExpired(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)

	f.clock.Advance(paymentWindow + time.Second)

	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	assert.ErrorIs(t, err, domain.ErrOrderExpired)
}

func TestCancelOrderReleasesReservations(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)

	require.NoError(t, f.svc.CancelOrder(context.Background(), summary.OrderID, 1))

	stored, _ := f.orders.FindByID(context.Background(), summary.OrderID)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, 10, f.inventory.stock[70])
	assert.Equal(t, 10, f.inventory.stock[80])

	// 重复取消幂等, 不会二次释放
	require.NoError(t, f.svc.CancelOrder(context.Background(), summary.OrderID, 1))
	assert.Equal(t, 2, f.inventory.released[70])
}

func TestCancelOrderRejectedForOtherUser(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)

	err := f.svc.CancelOrder(context.Background(), summary.OrderID, 2)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelExpiredSkipsPaidOrder(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)
	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelExpired(context.Background(), summary.OrderNo))

	stored, _ := f.orders.FindByID(context.Background(), summary.OrderID)
	assert.Equal(t, domain.StatusPendingShipment, stored.Status, "已支付订单不受超时取消影响")
	assert.Zero(t, f.inventory.released[70])
}

func TestSweepCancelsExpiredOrders(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)

	f.clock.Advance(paymentWindow + time.Minute)

	n, err := f.svc.SweepExpiredOrders(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := f.orders.FindByID(context.Background(), summary.OrderID)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, 10, f.inventory.stock[70])
}

func TestSweepAutoCompletesOverdueOrders(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)
	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	require.NoError(t, err)

	f.clock.Advance(autoComplete + time.Hour)

	n, err := f.svc.SweepAutoComplete(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := f.orders.FindByID(context.Background(), summary.OrderID)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
}

func TestConfirmReceiptCompletesOrder(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)
	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmReceipt(context.Background(), summary.OrderID, 1))
	stored, _ := f.orders.FindByID(context.Background(), summary.OrderID)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	// 重复确认幂等
	require.NoError(t, f.svc.ConfirmReceipt(context.Background(), summary.OrderID, 1))
}

func TestApplyPaidEventConfirmsStockAndSales(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)
	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	require.NoError(t, err)

	require.Len(t, f.paid.events, 1)
	require.NoError(t, f.svc.ApplyPaidEvent(context.Background(), f.paid.events[0]))

	assert.Equal(t, 2, f.inventory.confirmed[70])
	assert.Equal(t, 1, f.inventory.confirmed[80])
	assert.Equal(t, 2, f.orders.sales[7])
	assert.Equal(t, 1, f.orders.sales[8])
}

func TestApplyPaidEventRedeliveryDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)
	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	require.NoError(t, err)

	// Kafka 至少投递一次, 同一事件会被重复消费
	require.Len(t, f.paid.events, 1)
	evt := f.paid.events[0]
	require.NoError(t, f.svc.ApplyPaidEvent(context.Background(), evt))
	require.NoError(t, f.svc.ApplyPaidEvent(context.Background(), evt))

	assert.Equal(t, 2, f.inventory.confirmed[70], "重复消费不应二次扣减")
	assert.Equal(t, 1, f.inventory.confirmed[80])
	assert.Equal(t, 2, f.orders.sales[7], "重复消费不应重复累计销量")
	assert.Equal(t, 1, f.orders.sales[8])
}

func TestApplyPaidEventResumesAfterPartialConfirm(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)
	_, err := f.svc.PayOrder(context.Background(), PayOrderCommand{
		OrderID: summary.OrderID, UserID: 1, TransactionID: "txn-1"})
	require.NoError(t, err)
	evt := f.paid.events[0]

	// 上一次消费只确认到第一行就中断
	_, err = f.inventory.ConfirmOrder(context.Background(), evt.OrderNo,
		[]inventory.Line{{SkuID: 70, Qty: 2}})
	require.NoError(t, err)

	require.NoError(t, f.svc.ApplyPaidEvent(context.Background(), evt))

	// 重试只补未确认的行, 已确认的行不会二次扣减
	assert.Equal(t, 2, f.inventory.confirmed[70])
	assert.Equal(t, 1, f.inventory.confirmed[80])
	assert.Equal(t, 1, f.orders.sales[8])
	assert.Zero(t, f.orders.sales[7])
}

func TestGetOrderTimeoutSeconds(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.createOrder(t)

	f.clock.Advance(4 * time.Minute)

	seconds, err := f.svc.GetOrderTimeoutSeconds(context.Background(), summary.OrderID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(360), seconds)
}

func TestQuickBuySkipsCart(t *testing.T) {
	f := newFixture(t, nil)

	summary, err := f.svc.QuickBuy(context.Background(), QuickBuyCommand{
		UserID: 1, AddressID: 10, ProductID: 7, SkuID: 70, Quantity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), summary.TotalAmount)
	assert.Equal(t, 7, f.inventory.stock[70])
	assert.Len(t, f.checkout.carts, 2, "立即购买不动购物车")

	// 同参数重复提交命中幂等记录
	again, err := f.svc.QuickBuy(context.Background(), QuickBuyCommand{
		UserID: 1, AddressID: 10, ProductID: 7, SkuID: 70, Quantity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, summary.OrderNo, again.OrderNo)
	assert.Len(t, f.orders.byID, 1)
}
