// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"oms/internal/pkg/apperr"
	"oms/internal/pkg/logger"
	"oms/internal/service/inventory/application"
)

// InventoryHandler 暴露库存台账的 HTTP 接口。
// 路由和入参校验之外的逻辑全部委托给应用服务。
type InventoryHandler struct {
	service *application.InventoryService
}

func NewInventoryHandler(service *application.InventoryService) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/products", h.createProduct)
	mux.HandleFunc("GET /api/v1/inventory/{sku}", h.getProduct)
	mux.HandleFunc("GET /api/v1/inventory/{sku}/stock", h.checkStock)
	mux.HandleFunc("PUT /api/v1/inventory/{sku}/stock", h.updateStock)
	mux.HandleFunc("POST /api/v1/inventory/{sku}/reserve", h.reserve)
	mux.HandleFunc("POST /api/v1/inventory/{sku}/release", h.release)
	mux.HandleFunc("POST /api/v1/inventory/{sku}/deduct", h.confirmDeduction)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	sku := r.PathValue("sku")
	orderID := r.Header.Get("X-Order-Id")

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.service.Reserve(ctx, sku, req.Quantity, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sku":               product.SKU,
		"reservedQuantity":  product.ReservedQuantity,
		"availableQuantity": product.AvailableQuantity(),
	})
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	sku := r.PathValue("sku")
	orderID := r.Header.Get("X-Order-Id")

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.service.Release(ctx, sku, req.Quantity, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sku":               product.SKU,
		"reservedQuantity":  product.ReservedQuantity,
		"availableQuantity": product.AvailableQuantity(),
	})
}

func (h *InventoryHandler) confirmDeduction(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	sku := r.PathValue("sku")

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.service.ConfirmDeduction(ctx, sku, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sku":      product.SKU,
		"quantity": product.Quantity,
	})
}

func (h *InventoryHandler) checkStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	resp, err := h.service.CheckStock(ctx, r.PathValue("sku"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InventoryHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	resp, err := h.service.GetProduct(ctx, r.PathValue("sku"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InventoryHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req application.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SKU == "" || req.Name == "" {
		http.Error(w, "sku and name are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreateProduct(ctx, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *InventoryHandler) updateStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.UpdateStock(ctx, r.PathValue("sku"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError 把业务错误渲染为 {code, message, details}，
// 非业务错误一律 500 并只记日志，不外泄内部细节。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.HTTPStatus(), appErr)
		return
	}
	logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    "INTERNAL",
		"message": "internal server error",
	})
}
