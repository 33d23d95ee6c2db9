// internal/service/order/infrastructure/adapter/inventory_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"oms/internal/pkg/apperr"
	"oms/internal/pkg/httpclient"
	"oms/internal/service/order/port"
)

const inventoryServiceName = "inventory-service"

// InventoryHTTPAdapter 实现 port.InventoryGateway：通过注册中心发现
// 库存服务并发起 HTTP 调用。远端的业务拒绝（4xx）按响应体里的错误码
// 还原成 apperr；网络失败、超时和 5xx 一律归为 DEPENDENCY_UNAVAILABLE。
type InventoryHTTPAdapter struct {
	client      *httpclient.Client
	callTimeout time.Duration
}

func NewInventoryHTTPAdapter(client *httpclient.Client, callTimeout time.Duration) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client, callTimeout: callTimeout}
}

type productPayload struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func (a *InventoryHTTPAdapter) GetProduct(ctx context.Context, sku string) (*port.ProductInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	status, body, err := a.client.DoJSON(ctx, inventoryServiceName, http.MethodGet,
		"/api/v1/inventory/"+sku, nil)
	if err != nil {
		return nil, apperr.DependencyUnavailable(inventoryServiceName, err)
	}
	if status != http.StatusOK {
		return nil, decodeRemoteError(status, body)
	}

	var payload productPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.DependencyUnavailable(inventoryServiceName, err)
	}
	return &port.ProductInfo{SKU: payload.SKU, Name: payload.Name, Price: payload.Price}, nil
}

func (a *InventoryHTTPAdapter) Reserve(ctx context.Context, sku string, qty int, orderID string) error {
	return a.postQuantity(ctx, "/api/v1/inventory/"+sku+"/reserve", qty, orderID)
}

func (a *InventoryHTTPAdapter) Release(ctx context.Context, sku string, qty int, orderID string) error {
	return a.postQuantity(ctx, "/api/v1/inventory/"+sku+"/release", qty, orderID)
}

func (a *InventoryHTTPAdapter) postQuantity(ctx context.Context, path string, qty int, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	req := struct {
		Quantity int `json:"quantity"`
	}{Quantity: qty}

	status, body, err := a.client.DoJSONWithHeaders(ctx, inventoryServiceName, http.MethodPost, path, req,
		map[string]string{"X-Order-Id": orderID})
	if err != nil {
		return apperr.DependencyUnavailable(inventoryServiceName, err)
	}
	if status != http.StatusOK {
		return decodeRemoteError(status, body)
	}
	return nil
}

// decodeRemoteError 把远端的错误响应还原成本地的 apperr。
// 4xx 响应体带 {code, message, details}，按原始错误码重建；
// 解析不出来的响应和所有 5xx 都视为依赖不可用。
func decodeRemoteError(status int, body []byte) error {
	if status >= http.StatusInternalServerError {
		return apperr.DependencyUnavailable(inventoryServiceName,
			fmt.Errorf("remote returned status %d", status))
	}

	var remote apperr.Error
	if err := json.Unmarshal(body, &remote); err != nil || remote.Code == "" {
		return apperr.DependencyUnavailable(inventoryServiceName,
			fmt.Errorf("unparseable error response, status %d", status))
	}
	return &remote
}
