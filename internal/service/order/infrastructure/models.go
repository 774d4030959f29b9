// internal/service/order/infrastructure/models.go
package infrastructure

import "time"

// OrderModel 订单主表, 地址快照随单冗余
type OrderModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrderNo        string `gorm:"size:32;uniqueIndex"`
	UserID         uint64 `gorm:"index:idx_orders_user_status"`
	Status         string `gorm:"size:20;index:idx_orders_user_status;index:idx_orders_status_created"`
	PaymentStatus  string `gorm:"size:10"`
	TotalAmount    int64
	DiscountAmount int64
	PaymentAmount  int64
	PromotionID    *uint64
	ReceiverName   string `gorm:"size:64"`
	ReceiverPhone  string `gorm:"size:20"`
	Province       string `gorm:"size:32"`
	City           string `gorm:"size:32"`
	District       string `gorm:"size:32"`
	Detail         string `gorm:"size:255"`
	PaidAt         *time.Time
	CreatedAt      time.Time `gorm:"index:idx_orders_status_created"`
	UpdatedAt      time.Time
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 订单行, 商品信息为下单时刻快照
type OrderItemModel struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID     string `gorm:"size:36;index"`
	ProductID   uint64
	SkuID       uint64
	ProductName string `gorm:"size:128"`
	MainImage   string `gorm:"size:255"`
	SkuSpec     string `gorm:"size:128"`
	UnitPrice   int64
	Quantity    int
	CreatedAt   time.Time
}

func (OrderItemModel) TableName() string { return "order_items" }

// PaymentLogModel 支付流水, (order_id, transaction_id) 唯一保证回调幂等
type PaymentLogModel struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID       string `gorm:"size:36;uniqueIndex:uk_payment_order_txn"`
	TransactionID string `gorm:"size:64;uniqueIndex:uk_payment_order_txn"`
	OrderNo       string `gorm:"size:32"`
	UserID        uint64
	PaymentType   string `gorm:"size:20"`
	Amount        int64
	CreatedAt     time.Time
}

func (PaymentLogModel) TableName() string { return "payment_logs" }

// CartItemModel 购物车
type CartItemModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"index"`
	ProductID uint64
	SkuID     uint64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CartItemModel) TableName() string { return "cart_items" }

// AddressModel 收货地址
type AddressModel struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	UserID        uint64 `gorm:"index"`
	ReceiverName  string `gorm:"size:64"`
	ReceiverPhone string `gorm:"size:20"`
	Province      string `gorm:"size:32"`
	City          string `gorm:"size:32"`
	District      string `gorm:"size:32"`
	Detail        string `gorm:"size:255"`
	IsDefault     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AddressModel) TableName() string { return "addresses" }

// ProductModel 商品主表, Sales 为累计销量
type ProductModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128"`
	MainImage string `gorm:"size:255"`
	OnSale    bool   `gorm:"index"`
	Sales     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProductModel) TableName() string { return "products" }

// ProductSkuModel 商品 SKU, 价格以分计
type ProductSkuModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ProductID uint64 `gorm:"index"`
	Spec      string `gorm:"size:128"`
	Price     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProductSkuModel) TableName() string { return "product_skus" }
