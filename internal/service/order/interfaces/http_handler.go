// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/application"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
)

// OrderHandler 封装订单服务的 HTTP 处理器
type OrderHandler struct {
	service *application.OrderApplicationService
}

func NewOrderHandler(service *application.OrderApplicationService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/orders/create", h.createOrder)
	mux.HandleFunc("/orders/quick_buy", h.quickBuy)
	mux.HandleFunc("/orders/pay", h.payOrder)
	mux.HandleFunc("/orders/cancel", h.cancelOrder)
	mux.HandleFunc("/orders/confirm_receipt", h.confirmReceipt)
	mux.HandleFunc("/orders/timeout", h.orderTimeout)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	userID := parseUint(r, "userId")
	addressID := parseUint(r, "addressId")

	var cartIDs []uint64
	for _, s := range strings.Split(r.URL.Query().Get("cartItemIds"), ",") {
		if s == "" {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, &domain.ValidationError{Reason: "invalid cart item id: " + s})
			return
		}
		cartIDs = append(cartIDs, id)
	}

	summary, err := h.service.CreateOrder(ctx, application.CreateOrderCommand{
		UserID:      userID,
		AddressID:   addressID,
		CartItemIDs: cartIDs,
	})
	if err != nil {
		logger.Ctx(ctx).Printf("WARN: create order failed user=%d: %v", userID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *OrderHandler) quickBuy(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	qty, _ := strconv.Atoi(r.URL.Query().Get("quantity"))
	if qty == 0 {
		qty = 1
	}

	summary, err := h.service.QuickBuy(ctx, application.QuickBuyCommand{
		UserID:    parseUint(r, "userId"),
		AddressID: parseUint(r, "addressId"),
		ProductID: parseUint(r, "productId"),
		SkuID:     parseUint(r, "skuId"),
		Quantity:  qty,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *OrderHandler) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	result, err := h.service.PayOrder(ctx, application.PayOrderCommand{
		OrderID:       r.URL.Query().Get("orderId"),
		UserID:        parseUint(r, "userId"),
		PaymentType:   r.URL.Query().Get("paymentType"),
		TransactionID: r.URL.Query().Get("transactionId"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if err := h.service.CancelOrder(ctx, r.URL.Query().Get("orderId"), parseUint(r, "userId")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *OrderHandler) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if err := h.service.ConfirmReceipt(ctx, r.URL.Query().Get("orderId"), parseUint(r, "userId")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *OrderHandler) orderTimeout(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	seconds, err := h.service.GetOrderTimeoutSeconds(ctx, r.URL.Query().Get("orderId"), parseUint(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"timeout_seconds": seconds})
}

func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func parseUint(r *http.Request, key string) uint64 {
	v, _ := strconv.ParseUint(r.URL.Query().Get(key), 10, 64)
	return v
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError 把领域错误映射为 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var se *domain.StockShortError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Reason})
	case errors.As(err, &se):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": se.Error(), "sku_id": se.SkuID})
	case errors.Is(err, domain.ErrProcessing):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "request is being processed, retry shortly"})
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrAddressNotFound),
		errors.Is(err, domain.ErrCartItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrOrderExpired), errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error, please retry"})
	}
}
