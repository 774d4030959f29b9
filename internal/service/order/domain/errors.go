// internal/service/order/domain/errors.go
package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrAddressNotFound  = errors.New("address not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrOrderExpired     = errors.New("order payment window expired")
	ErrAlreadyPaid      = errors.New("order already paid")
	ErrStatusConflict   = errors.New("order status conflict")
	// ErrProcessing 同一请求正在被另一个进程处理, 客户端应稍后重试
	ErrProcessing = errors.New("request is being processed")
)

// ValidationError 下单校验失败, 携带具体原因返回给调用方
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StockShortError 库存不足, 指明是哪个 SKU 不够
type StockShortError struct {
	SkuID uint64
}

func (e *StockShortError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %d", e.SkuID)
}
