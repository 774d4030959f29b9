// internal/service/order/application/service.go
package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/lock"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/metrics"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/inventory"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain/port"
	promodomain "github.com/Aru0077/shop-service-mysql-sub000/internal/service/promotion/domain"
)

// OrderApplicationService 负责订单生命周期的业务流程编排。
// 库存、活动、延迟任务都通过端口交互，这里只关心顺序与补偿。
type OrderApplicationService struct {
	orders    domain.OrderRepository
	checkout  domain.CheckoutReader
	promos    promodomain.Repository
	selector  *promodomain.Selector
	inventory port.InventoryEngine
	markers   port.MarkerStore
	scheduler port.DelayScheduler
	paid      port.PaidProducer
	locks     lock.Manager
	clock     clockwork.Clock
	tracer    trace.Tracer

	paymentWindow     time.Duration
	autoCompleteAfter time.Duration
	idempotencyTTL    time.Duration
	lockTTL           time.Duration
}

func NewOrderApplicationService(orders domain.OrderRepository, checkout domain.CheckoutReader,
	promos promodomain.Repository, selector *promodomain.Selector,
	inventory port.InventoryEngine, markers port.MarkerStore, scheduler port.DelayScheduler,
	paid port.PaidProducer, locks lock.Manager, clock clockwork.Clock, tracer trace.Tracer,
	paymentWindow, autoCompleteAfter, idempotencyTTL, lockTTL time.Duration) *OrderApplicationService {
	return &OrderApplicationService{
		orders: orders, checkout: checkout, promos: promos, selector: selector,
		inventory: inventory, markers: markers, scheduler: scheduler, paid: paid,
		locks: locks, clock: clock, tracer: tracer,
		paymentWindow: paymentWindow, autoCompleteAfter: autoCompleteAfter,
		idempotencyTTL: idempotencyTTL, lockTTL: lockTTL,
	}
}

// checkoutItem 是两种下单入口归一后的内部表示
type checkoutItem struct {
	productID uint64
	skuID     uint64
	quantity  int
}

// CreateOrder 购物车下单。同一用户同一批购物车条目的重复请求
// 返回第一次创建的订单，不会重复预占库存。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*OrderSummary, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder", trace.WithAttributes(
		attribute.Int64("user.id", int64(cmd.UserID)),
		attribute.Int("cart.items", len(cmd.CartItemIDs)),
	))
	defer span.End()

	if len(cmd.CartItemIDs) == 0 {
		return nil, &domain.ValidationError{Reason: "cart item ids required"}
	}
	ids := normalizeIDs(cmd.CartItemIDs)
	idemKey := idempotencyKey("cart", cmd.UserID, joinIDs(ids))

	if summary, ok := s.findExisting(ctx, idemKey); ok {
		span.AddEvent("duplicate request, returning existing order")
		return summary, nil
	}

	lease, err := s.locks.Acquire(ctx, "order:create:"+idemKey, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.LockDenials.Inc()
		return nil, domain.ErrProcessing
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "acquire create lock")
	}
	defer lease.Release(ctx)

	// 拿锁后复查, 并发重复请求在这里收敛
	if summary, ok := s.findExisting(ctx, idemKey); ok {
		return summary, nil
	}

	cartItems, err := s.checkout.GetCartItems(ctx, cmd.UserID, ids)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "load cart items")
	}
	if len(cartItems) != len(ids) {
		return nil, domain.ErrCartItemNotFound
	}
	items := make([]checkoutItem, 0, len(cartItems))
	for _, ci := range cartItems {
		items = append(items, checkoutItem{productID: ci.ProductID, skuID: ci.SkuID, quantity: ci.Quantity})
	}

	return s.placeOrder(ctx, span, cmd.UserID, cmd.AddressID, items, idemKey, ids)
}

// QuickBuy 立即购买，跳过购物车直接对单个 SKU 下单。
func (s *OrderApplicationService) QuickBuy(ctx context.Context, cmd QuickBuyCommand) (*OrderSummary, error) {
	ctx, span := s.tracer.Start(ctx, "app.QuickBuy", trace.WithAttributes(
		attribute.Int64("user.id", int64(cmd.UserID)),
		attribute.Int64("sku.id", int64(cmd.SkuID)),
	))
	defer span.End()

	if cmd.Quantity <= 0 {
		return nil, &domain.ValidationError{Reason: "quantity must be positive"}
	}
	idemKey := idempotencyKey("quick", cmd.UserID,
		fmt.Sprintf("%d:%d:%d", cmd.ProductID, cmd.SkuID, cmd.Quantity))

	if summary, ok := s.findExisting(ctx, idemKey); ok {
		span.AddEvent("duplicate request, returning existing order")
		return summary, nil
	}

	lease, err := s.locks.Acquire(ctx, "order:create:"+idemKey, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.LockDenials.Inc()
		return nil, domain.ErrProcessing
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "acquire create lock")
	}
	defer lease.Release(ctx)

	if summary, ok := s.findExisting(ctx, idemKey); ok {
		return summary, nil
	}

	items := []checkoutItem{{productID: cmd.ProductID, skuID: cmd.SkuID, quantity: cmd.Quantity}}
	return s.placeOrder(ctx, span, cmd.UserID, cmd.AddressID, items, idemKey, nil)
}

// placeOrder 执行下单主流程: 校验 -> 算价 -> 落库 -> 预占 -> 布置超时。
// 订单落库之后的任何失败都会走补偿, 订单以 CANCELLED 收场,
// 不会留下没有对应预占的待支付订单。
func (s *OrderApplicationService) placeOrder(ctx context.Context, span trace.Span,
	userID, addressID uint64, items []checkoutItem, idemKey string, cartIDs []uint64) (*OrderSummary, error) {

	addr, err := s.checkout.GetAddress(ctx, addressID, userID)
	if err != nil {
		return nil, err
	}

	skuIDs := make([]uint64, 0, len(items))
	for _, it := range items {
		if it.quantity <= 0 {
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("invalid quantity for sku %d", it.skuID)}
		}
		skuIDs = append(skuIDs, it.skuID)
	}
	skus, err := s.checkout.GetSaleSkus(ctx, skuIDs)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "load skus")
	}

	var subtotal int64
	for _, it := range items {
		sku, ok := skus[it.skuID]
		if !ok || !sku.OnSale {
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("sku %d is not on sale", it.skuID)}
		}
		// 预检只挡明显不足的请求, 真正的额度控制在预占时原子完成
		avail, err := s.inventory.Available(ctx, it.skuID)
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrapf(err, "check stock for sku %d", it.skuID)
		}
		if avail < it.quantity {
			return nil, &domain.StockShortError{SkuID: it.skuID}
		}
		subtotal += sku.Price * int64(it.quantity)
	}

	now := s.clock.Now()
	discount, promoID := s.pickPromotion(ctx, subtotal, items, userID, now)

	order := &domain.Order{
		ID:             uuid.NewString(),
		OrderNo:        domain.NewOrderNo(now, userID),
		UserID:         userID,
		Status:         domain.StatusPendingPayment,
		PaymentStatus:  domain.PaymentUnpaid,
		TotalAmount:    subtotal,
		DiscountAmount: discount,
		PaymentAmount:  subtotal - discount,
		PromotionID:    promoID,
		Address:        *addr,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, it := range items {
		sku := skus[it.skuID]
		order.Items = append(order.Items, domain.OrderItem{
			OrderID:     order.ID,
			ProductID:   it.productID,
			SkuID:       it.skuID,
			ProductName: sku.ProductName,
			MainImage:   sku.MainImage,
			SkuSpec:     sku.SkuSpec,
			UnitPrice:   sku.Price,
			Quantity:    it.quantity,
		})
	}

	if err := s.orders.CreateWithItems(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist order failed")
		return nil, errors.Wrap(err, "create order")
	}
	span.AddEvent("order persisted", trace.WithAttributes(attribute.String("order.no", order.OrderNo)))

	// 幂等记录尽力写入; 写失败时创建锁仍挡住短窗口内的重复请求
	if err := s.markers.PutIdempotency(ctx, idemKey, order.ID, s.idempotencyTTL); err != nil {
		logger.Ctx(ctx).Printf("WARN: put idempotency marker failed order=%s: %v", order.OrderNo, err)
	}

	for i, it := range order.Items {
		ok, err := s.inventory.Reserve(ctx, it.SkuID, it.Quantity, order.OrderNo, s.paymentWindow)
		if err != nil || !ok {
			s.compensate(ctx, order, i, idemKey)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "reserve failed")
				return nil, errors.Wrapf(err, "reserve sku %d", it.SkuID)
			}
			span.AddEvent("reserve rejected", trace.WithAttributes(attribute.Int64("sku.id", int64(it.SkuID))))
			return nil, &domain.StockShortError{SkuID: it.SkuID}
		}
	}

	if err := s.markers.ArmExpire(ctx, order.OrderNo, s.paymentWindow); err != nil {
		s.compensate(ctx, order, len(order.Items), idemKey)
		span.RecordError(err)
		return nil, errors.Wrap(err, "arm expire marker")
	}
	// 延迟任务失败不回滚: 到期标记已就位, 兜底扫描会捕获漏网订单
	if err := s.scheduler.SchedulePaymentTimeout(ctx, order.OrderNo, now.Add(s.paymentWindow)); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_no", order.OrderNo).Msg("延迟取消任务投递失败, 依赖兜底扫描")
	}

	if len(cartIDs) > 0 {
		if err := s.checkout.DeleteCartItems(ctx, userID, cartIDs); err != nil {
			s.compensate(ctx, order, len(order.Items), idemKey)
			span.RecordError(err)
			return nil, errors.Wrap(err, "clear cart")
		}
	}

	logger.Ctx(ctx).Info().
		Str("order_no", order.OrderNo).
		Uint64("user_id", userID).
		Int64("payment_amount", order.PaymentAmount).
		Msg("订单创建成功")

	return &OrderSummary{
		OrderID:        order.ID,
		OrderNo:        order.OrderNo,
		Status:         string(order.Status),
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		PaymentAmount:  order.PaymentAmount,
		TimeoutSeconds: int64(s.paymentWindow / time.Second),
	}, nil
}

// pickPromotion 选取满减活动。活动读取失败按无活动处理, 不阻塞下单。
func (s *OrderApplicationService) pickPromotion(ctx context.Context, subtotal int64,
	items []checkoutItem, userID uint64, now time.Time) (int64, *uint64) {
	active, err := s.promos.ListActive(ctx, now)
	if err != nil {
		logger.Ctx(ctx).Printf("WARN: list promotions failed, skipping discount: %v", err)
		return 0, nil
	}
	count := 0
	for _, it := range items {
		count += it.quantity
	}
	best := s.selector.Pick(active, promodomain.Fact{Subtotal: subtotal, ItemCount: count, UserID: userID}, now)
	if best == nil {
		return 0, nil
	}
	id := best.ID
	return best.Discount(subtotal), &id
}

// compensate 释放前 reserved 个订单行的预占并把订单置为 CANCELLED。
// 释放失败只记录不中断, 审计对账兜底修正。幂等记录一并删除,
// 否则它会在 TTL 內一直指向这张已取消的订单, 用户无法重新下单。
func (s *OrderApplicationService) compensate(ctx context.Context, order *domain.Order, reserved int, idemKey string) {
	if reserved > 0 {
		if err := s.inventory.ReleaseOrder(ctx, order.OrderNo, orderLines(order.Items[:reserved])); err != nil {
			metrics.CompensationFailures.Inc()
			logger.Ctx(ctx).Error().Err(err).
				Str("order_no", order.OrderNo).
				Msg("补偿释放预占失败, 等待库存对账修正")
		}
	}
	if err := order.Cancel(s.clock.Now()); err == nil {
		if err := s.orders.Transition(ctx, order, domain.StatusPendingPayment); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_no", order.OrderNo).Msg("补偿后订单状态落库失败")
		}
	}
	if err := s.markers.DeleteIdempotency(ctx, idemKey); err != nil {
		logger.Ctx(ctx).Printf("WARN: delete idempotency marker failed order=%s: %v", order.OrderNo, err)
	}
	if err := s.markers.DisarmExpire(ctx, order.OrderNo); err != nil {
		logger.Ctx(ctx).Printf("WARN: disarm expire marker failed order=%s: %v", order.OrderNo, err)
	}
}

// PayOrder 支付回调入口。同一笔交易号的重放直接返回成功,
// 已用其他交易号支付过的订单返回 ErrAlreadyPaid。
func (s *OrderApplicationService) PayOrder(ctx context.Context, cmd PayOrderCommand) (*PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.PayOrder", trace.WithAttributes(
		attribute.String("order.id", cmd.OrderID),
	))
	defer span.End()

	lease, err := s.locks.Acquire(ctx, "order:state:"+cmd.OrderID, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.LockDenials.Inc()
		return nil, domain.ErrProcessing
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "acquire state lock")
	}
	defer lease.Release(ctx)

	order, err := s.loadOwned(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == domain.PaymentPaid {
		dup, err := s.orders.HasPaymentLog(ctx, order.ID, cmd.TransactionID)
		if err != nil {
			return nil, err
		}
		if dup {
			// 同一笔交易重放, 幂等成功
			span.AddEvent("duplicate transaction, no-op")
			return &PaymentResult{OrderID: order.ID, Status: string(order.Status), PaidAt: *order.PaidAt}, nil
		}
		return nil, domain.ErrAlreadyPaid
	}
	if order.Status != domain.StatusPendingPayment {
		return nil, domain.ErrStatusConflict
	}

	// 到期标记消失说明支付窗口已关闭, 拒绝支付, 订单交给取消流程
	if _, ok, err := s.markers.ExpireRemaining(ctx, order.OrderNo); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "check expire marker")
	} else if !ok {
		return nil, domain.ErrOrderExpired
	}

	now := s.clock.Now()
	if err := order.Pay(now); err != nil {
		return nil, err
	}
	plog := &domain.PaymentLog{
		OrderID:       order.ID,
		OrderNo:       order.OrderNo,
		UserID:        order.UserID,
		PaymentType:   cmd.PaymentType,
		TransactionID: cmd.TransactionID,
		Amount:        order.PaymentAmount,
		CreatedAt:     now,
	}
	if err := s.orders.MarkPaid(ctx, order, plog); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark paid failed")
		return nil, err
	}

	if err := s.markers.DisarmExpire(ctx, order.OrderNo); err != nil {
		logger.Ctx(ctx).Printf("WARN: disarm expire marker failed order=%s: %v", order.OrderNo, err)
	}
	if err := s.scheduler.CancelPaymentTimeout(ctx, order.OrderNo); err != nil {
		logger.Ctx(ctx).Printf("WARN: cancel timeout task failed order=%s: %v", order.OrderNo, err)
	}
	if err := s.markers.ArmAutoComplete(ctx, order.OrderNo, s.autoCompleteAfter); err != nil {
		logger.Ctx(ctx).Printf("WARN: arm auto-complete marker failed order=%s: %v", order.OrderNo, err)
	}

	s.publishPaid(ctx, order, now)

	logger.Ctx(ctx).Info().Str("order_no", order.OrderNo).Str("txn", cmd.TransactionID).Msg("订单支付成功")
	return &PaymentResult{OrderID: order.ID, Status: string(order.Status), PaidAt: now}, nil
}

// publishPaid 发布支付成功事件, 带有限次重试。
// 最终失败只能人工补偿, 所以日志必须够醒目。
func (s *OrderApplicationService) publishPaid(ctx context.Context, order *domain.Order, paidAt time.Time) {
	evt := &domain.OrderPaidEvent{
		OrderID: order.ID,
		OrderNo: order.OrderNo,
		UserID:  order.UserID,
		PaidAt:  paidAt,
	}
	for _, it := range order.Items {
		evt.Items = append(evt.Items, domain.PaidItem{ProductID: it.ProductID, SkuID: it.SkuID, Quantity: it.Quantity})
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = s.paid.PublishOrderPaid(ctx, evt); err == nil {
			return
		}
		metrics.PaidFanoutRetries.Inc()
		s.clock.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	logger.Ctx(ctx).Error().Err(err).Str("order_no", order.OrderNo).
		Msg("支付事件发布失败, 库存确认与销量累计未触发, 需人工补偿")
}

// CancelOrder 用户主动取消待支付订单。已取消的订单重复取消返回成功。
func (s *OrderApplicationService) CancelOrder(ctx context.Context, orderID string, userID uint64) error {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	lease, err := s.locks.Acquire(ctx, "order:state:"+orderID, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.LockDenials.Inc()
		return domain.ErrProcessing
	}
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "acquire state lock")
	}
	defer lease.Release(ctx)

	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if order.Status == domain.StatusCancelled {
		return nil
	}
	return s.cancelLocked(ctx, order, "user cancelled")
}

// CancelExpired 由延迟任务和兜底扫描调用。订单已支付或已取消时
// 静默跳过; 抢不到状态锁时返回 ErrProcessing, 由下一轮重试。
func (s *OrderApplicationService) CancelExpired(ctx context.Context, orderNo string) error {
	ctx, span := s.tracer.Start(ctx, "app.CancelExpired", trace.WithAttributes(
		attribute.String("order.no", orderNo),
	))
	defer span.End()

	order, err := s.orders.FindByOrderNo(ctx, orderNo)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status != domain.StatusPendingPayment {
		span.AddEvent("order already settled, no-op")
		return nil
	}

	lease, err := s.locks.Acquire(ctx, "order:state:"+order.ID, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.LockDenials.Inc()
		return domain.ErrProcessing
	}
	if err != nil {
		return errors.Wrap(err, "acquire state lock")
	}
	defer lease.Release(ctx)

	// 拿锁后重读, 和并发的支付请求分出先后
	order, err = s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return err
	}
	if order.Status != domain.StatusPendingPayment {
		return nil
	}
	return s.cancelLocked(ctx, order, "payment timeout")
}

// cancelLocked 在持有状态锁的前提下取消订单。先落库再释放预占,
// 释放失败不影响取消结果, 差额由库存对账修正。
func (s *OrderApplicationService) cancelLocked(ctx context.Context, order *domain.Order, reason string) error {
	if err := order.Cancel(s.clock.Now()); err != nil {
		return err
	}
	if err := s.orders.Transition(ctx, order, domain.StatusPendingPayment); err != nil {
		return err
	}
	if err := s.inventory.ReleaseOrder(ctx, order.OrderNo, orderLines(order.Items)); err != nil {
		metrics.CompensationFailures.Inc()
		logger.Ctx(ctx).Error().Err(err).
			Str("order_no", order.OrderNo).
			Msg("取消订单后释放预占失败, 等待库存对账修正")
	}
	if err := s.markers.DisarmExpire(ctx, order.OrderNo); err != nil {
		logger.Ctx(ctx).Printf("WARN: disarm expire marker failed order=%s: %v", order.OrderNo, err)
	}
	if err := s.scheduler.CancelPaymentTimeout(ctx, order.OrderNo); err != nil {
		logger.Ctx(ctx).Printf("WARN: cancel timeout task failed order=%s: %v", order.OrderNo, err)
	}
	logger.Ctx(ctx).Info().Str("order_no", order.OrderNo).Str("reason", reason).Msg("订单已取消")
	return nil
}

// ConfirmReceipt 确认收货。已完成的订单重复确认返回成功。
func (s *OrderApplicationService) ConfirmReceipt(ctx context.Context, orderID string, userID uint64) error {
	ctx, span := s.tracer.Start(ctx, "app.ConfirmReceipt", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if order.Status == domain.StatusCompleted {
		return nil
	}
	prev := order.Status
	if err := order.Complete(s.clock.Now()); err != nil {
		return err
	}
	return s.orders.Transition(ctx, order, prev)
}

// GetOrderTimeoutSeconds 查询支付剩余秒数。订单不在待支付状态,
// 或到期标记已消失, 都返回 0。
func (s *OrderApplicationService) GetOrderTimeoutSeconds(ctx context.Context, orderID string, userID uint64) (int64, error) {
	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		return 0, err
	}
	if order.Status != domain.StatusPendingPayment {
		return 0, nil
	}
	remaining, ok, err := s.markers.ExpireRemaining(ctx, order.OrderNo)
	if err != nil || !ok {
		return 0, err
	}
	return int64(remaining / time.Second), nil
}

// GetOrder 查询订单详情。
func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string, userID uint64) (*domain.Order, error) {
	return s.loadOwned(ctx, orderID, userID)
}

// ApplyPaidEvent 消费支付成功事件: 确认库存扣减并累计商品销量。
// 事件至少投递一次, 确认和销量累计都必须幂等。
func (s *OrderApplicationService) ApplyPaidEvent(ctx context.Context, evt *domain.OrderPaidEvent) error {
	ctx, span := s.tracer.Start(ctx, "app.ApplyPaidEvent",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("order.no", evt.OrderNo)))
	defer span.End()

	lines := make([]inventory.Line, 0, len(evt.Items))
	for _, it := range evt.Items {
		lines = append(lines, inventory.Line{SkuID: it.SkuID, Qty: it.Quantity})
	}
	applied, err := s.inventory.ConfirmOrder(ctx, evt.OrderNo, lines)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "confirm order stock")
	}

	// 只为本次真正扣减的行累计销量, 事件重放不会重复累计
	appliedSet := make(map[uint64]struct{}, len(applied))
	for _, skuID := range applied {
		appliedSet[skuID] = struct{}{}
	}
	for _, it := range evt.Items {
		if _, ok := appliedSet[it.SkuID]; !ok {
			continue
		}
		if err := s.orders.IncrProductSales(ctx, it.ProductID, it.Quantity); err != nil {
			logger.Ctx(ctx).Printf("WARN: incr product sales failed product=%d: %v", it.ProductID, err)
		}
	}
	return nil
}

func orderLines(items []domain.OrderItem) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventory.Line{SkuID: it.SkuID, Qty: it.Quantity})
	}
	return lines
}

// SweepExpiredOrders 兜底扫描: 取消创建超过支付窗口仍未支付的订单。
// 返回成功取消的数量。
func (s *OrderApplicationService) SweepExpiredOrders(ctx context.Context, batch int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "app.SweepExpiredOrders")
	defer span.End()

	cutoff := s.clock.Now().Add(-s.paymentWindow)
	stale, err := s.orders.FindPendingOlderThan(ctx, cutoff, batch)
	if err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, "scan pending orders")
	}
	cancelled := 0
	for _, o := range stale {
		if err := s.CancelExpired(ctx, o.OrderNo); err != nil {
			logger.Ctx(ctx).Printf("WARN: sweep cancel failed order=%s: %v", o.OrderNo, err)
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		metrics.SweepCancellations.Add(float64(cancelled))
	}
	span.SetAttributes(attribute.Int("orders.cancelled", cancelled))
	return cancelled, nil
}

// SweepAutoComplete 把支付后超过宽限期仍未确认收货的订单置为完成。
func (s *OrderApplicationService) SweepAutoComplete(ctx context.Context, batch int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "app.SweepAutoComplete")
	defer span.End()

	cutoff := s.clock.Now().Add(-s.autoCompleteAfter)
	overdue, err := s.orders.FindPaidUndeliveredOlderThan(ctx, cutoff, batch)
	if err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, "scan overdue orders")
	}
	completed := 0
	for _, o := range overdue {
		prev := o.Status
		if err := o.Complete(s.clock.Now()); err != nil {
			continue
		}
		if err := s.orders.Transition(ctx, o, prev); err != nil {
			logger.Ctx(ctx).Printf("WARN: auto-complete failed order=%s: %v", o.OrderNo, err)
			continue
		}
		completed++
	}
	span.SetAttributes(attribute.Int("orders.completed", completed))
	return completed, nil
}

func (s *OrderApplicationService) loadOwned(ctx context.Context, orderID string, userID uint64) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// 归属校验失败按不存在处理, 不向调用方泄露他人订单
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderApplicationService) findExisting(ctx context.Context, idemKey string) (*OrderSummary, bool) {
	orderID, ok, err := s.markers.GetIdempotency(ctx, idemKey)
	if err != nil || !ok {
		return nil, false
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, false
	}
	summary := &OrderSummary{
		OrderID:        order.ID,
		OrderNo:        order.OrderNo,
		Status:         string(order.Status),
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		PaymentAmount:  order.PaymentAmount,
	}
	if order.Status == domain.StatusPendingPayment {
		if remaining, ok, err := s.markers.ExpireRemaining(ctx, order.OrderNo); err == nil && ok {
			summary.TimeoutSeconds = int64(remaining / time.Second)
		}
	}
	return summary, true
}

func normalizeIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

// idempotencyKey 由入口类型、用户与请求要素哈希而成,
// 同一用户对同一批商品的重复提交得到同一个键。
func idempotencyKey(kind string, userID uint64, payload string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", kind, userID, payload)))
	return hex.EncodeToString(sum[:])
}
