// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
)

// GormOrderRepository 订单聚合的 MySQL 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	if err := db.AutoMigrate(&OrderModel{}, &OrderItemModel{}, &PaymentLogModel{},
		&CartItemModel{}, &AddressModel{}, &ProductModel{}, &ProductSkuModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate order tables")
	}
	return &GormOrderRepository{db: db}, nil
}

func (r *GormOrderRepository) CreateWithItems(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toOrderModel(order)).Error; err != nil {
			return errors.Wrap(err, "insert order")
		}
		items := make([]OrderItemModel, 0, len(order.Items))
		for _, it := range order.Items {
			items = append(items, OrderItemModel{
				OrderID:     order.ID,
				ProductID:   it.ProductID,
				SkuID:       it.SkuID,
				ProductName: it.ProductName,
				MainImage:   it.MainImage,
				SkuSpec:     it.SkuSpec,
				UnitPrice:   it.UnitPrice,
				Quantity:    it.Quantity,
			})
		}
		if err := tx.Create(&items).Error; err != nil {
			return errors.Wrap(err, "insert order items")
		}
		return nil
	})
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "query order")
	}
	return r.hydrate(ctx, &m)
}

func (r *GormOrderRepository) FindByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	var m OrderModel
	if err := r.db.WithContext(ctx).First(&m, "order_no = ?", orderNo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "query order")
	}
	return r.hydrate(ctx, &m)
}

// Transition 带前置状态条件的更新。影响行数为 0 说明状态已被
// 并发修改, 返回 ErrStatusConflict 让调用方重读。
func (r *GormOrderRepository) Transition(ctx context.Context, order *domain.Order, from domain.Status) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status = ?", order.ID, string(from)).
		Updates(map[string]interface{}{
			"status":         string(order.Status),
			"payment_status": string(order.PaymentStatus),
			"paid_at":        order.PaidAt,
			"updated_at":     order.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "transition order")
	}
	if res.RowsAffected == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}

// MarkPaid 在一个事务里流转订单状态并写支付流水,
// 状态守卫与流水唯一索引共同保证回调幂等。
func (r *GormOrderRepository) MarkPaid(ctx context.Context, order *domain.Order, log *domain.PaymentLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OrderModel{}).
			Where("id = ? AND status = ?", order.ID, string(domain.StatusPendingPayment)).
			Updates(map[string]interface{}{
				"status":         string(order.Status),
				"payment_status": string(order.PaymentStatus),
				"paid_at":        order.PaidAt,
				"updated_at":     order.UpdatedAt,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "mark order paid")
		}
		if res.RowsAffected == 0 {
			return domain.ErrStatusConflict
		}
		return errors.Wrap(tx.Create(&PaymentLogModel{
			OrderID:       log.OrderID,
			TransactionID: log.TransactionID,
			OrderNo:       log.OrderNo,
			UserID:        log.UserID,
			PaymentType:   log.PaymentType,
			Amount:        log.Amount,
			CreatedAt:     log.CreatedAt,
		}).Error, "insert payment log")
	})
}

func (r *GormOrderRepository) HasPaymentLog(ctx context.Context, orderID, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PaymentLogModel{}).
		Where("order_id = ? AND transaction_id = ?", orderID, transactionID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "query payment log")
	}
	return count > 0, nil
}

func (r *GormOrderRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	return r.findByStatus(ctx, "status = ? AND created_at < ?",
		[]interface{}{string(domain.StatusPendingPayment), cutoff}, limit)
}

func (r *GormOrderRepository) FindPaidUndeliveredOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	return r.findByStatus(ctx, "status IN ? AND paid_at < ?",
		[]interface{}{[]string{string(domain.StatusPendingShipment), string(domain.StatusShipped)}, cutoff}, limit)
}

func (r *GormOrderRepository) findByStatus(ctx context.Context, cond string, args []interface{}, limit int) ([]*domain.Order, error) {
	var models []OrderModel
	if err := r.db.WithContext(ctx).
		Where(cond, args...).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		o, err := r.hydrate(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *GormOrderRepository) IncrProductSales(ctx context.Context, productID uint64, qty int) error {
	return errors.Wrap(r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ?", productID).
		Update("sales", gorm.Expr("sales + ?", qty)).Error, "incr product sales")
}

func (r *GormOrderRepository) hydrate(ctx context.Context, m *OrderModel) (*domain.Order, error) {
	var items []OrderItemModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", m.ID).Find(&items).Error; err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	order := &domain.Order{
		ID:             m.ID,
		OrderNo:        m.OrderNo,
		UserID:         m.UserID,
		Status:         domain.Status(m.Status),
		PaymentStatus:  domain.PaymentStatus(m.PaymentStatus),
		TotalAmount:    m.TotalAmount,
		DiscountAmount: m.DiscountAmount,
		PaymentAmount:  m.PaymentAmount,
		PromotionID:    m.PromotionID,
		Address: domain.AddressSnapshot{
			ReceiverName:  m.ReceiverName,
			ReceiverPhone: m.ReceiverPhone,
			Province:      m.Province,
			City:          m.City,
			District:      m.District,
			Detail:        m.Detail,
		},
		PaidAt:    m.PaidAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, it := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:          it.ID,
			OrderID:     it.OrderID,
			ProductID:   it.ProductID,
			SkuID:       it.SkuID,
			ProductName: it.ProductName,
			MainImage:   it.MainImage,
			SkuSpec:     it.SkuSpec,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}
	return order, nil
}

func toOrderModel(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:             o.ID,
		OrderNo:        o.OrderNo,
		UserID:         o.UserID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		PaymentAmount:  o.PaymentAmount,
		PromotionID:    o.PromotionID,
		ReceiverName:   o.Address.ReceiverName,
		ReceiverPhone:  o.Address.ReceiverPhone,
		Province:       o.Address.Province,
		City:           o.Address.City,
		District:       o.Address.District,
		Detail:         o.Address.Detail,
		PaidAt:         o.PaidAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// GormCheckoutReader 下单校验读取端口的 MySQL 实现
type GormCheckoutReader struct {
	db *gorm.DB
}

func NewGormCheckoutReader(db *gorm.DB) *GormCheckoutReader {
	return &GormCheckoutReader{db: db}
}

func (r *GormCheckoutReader) GetAddress(ctx context.Context, addressID, userID uint64) (*domain.AddressSnapshot, error) {
	var m AddressModel
	err := r.db.WithContext(ctx).First(&m, "id = ? AND user_id = ?", addressID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query address")
	}
	return &domain.AddressSnapshot{
		ReceiverName:  m.ReceiverName,
		ReceiverPhone: m.ReceiverPhone,
		Province:      m.Province,
		City:          m.City,
		District:      m.District,
		Detail:        m.Detail,
	}, nil
}

func (r *GormCheckoutReader) GetCartItems(ctx context.Context, userID uint64, ids []uint64) ([]domain.CartItem, error) {
	var models []CartItemModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	out := make([]domain.CartItem, 0, len(models))
	for _, m := range models {
		out = append(out, domain.CartItem{
			ID:        m.ID,
			UserID:    m.UserID,
			ProductID: m.ProductID,
			SkuID:     m.SkuID,
			Quantity:  m.Quantity,
		})
	}
	return out, nil
}

func (r *GormCheckoutReader) DeleteCartItems(ctx context.Context, userID uint64, ids []uint64) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&CartItemModel{}).Error, "delete cart items")
}

func (r *GormCheckoutReader) GetSaleSkus(ctx context.Context, skuIDs []uint64) (map[uint64]domain.SaleSku, error) {
	type row struct {
		SkuID       uint64
		ProductID   uint64
		Spec        string
		Price       int64
		ProductName string
		MainImage   string
		OnSale      bool
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("product_skus").
		Select("product_skus.id AS sku_id, product_skus.product_id, product_skus.spec, product_skus.price,"+
			" products.name AS product_name, products.main_image, products.on_sale").
		Joins("JOIN products ON products.id = product_skus.product_id").
		Where("product_skus.id IN ?", skuIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query skus")
	}
	out := make(map[uint64]domain.SaleSku, len(rows))
	for _, r := range rows {
		out[r.SkuID] = domain.SaleSku{
			SkuID:       r.SkuID,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			MainImage:   r.MainImage,
			SkuSpec:     r.Spec,
			Price:       r.Price,
			OnSale:      r.OnSale,
		}
	}
	return out, nil
}
