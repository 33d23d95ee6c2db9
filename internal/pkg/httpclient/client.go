// internal/pkg/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"oms/internal/pkg/nacos"
)

// Client 是可追踪的服务间 HTTP 客户端：目标地址通过注册中心解析，
// 每次调用注入 trace 头。超时完全由调用方传入的 context 控制。
type Client struct {
	tracer     trace.Tracer
	registry   *nacos.Client
	httpClient *http.Client
}

func NewClient(tracer trace.Tracer, registry *nacos.Client) *Client {
	return &Client{
		tracer:   tracer,
		registry: registry,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
}

// DoJSON 向目标服务的 path 发送一次 JSON 请求，返回状态码与响应体。
// 网络层错误（拨号失败、context 超时）以 error 返回；
// 业务层错误体现在状态码和响应体里，由调用方解释。
func (c *Client) DoJSON(ctx context.Context, serviceName, method, path string, reqBody interface{}) (int, []byte, error) {
	return c.DoJSONWithHeaders(ctx, serviceName, method, path, reqBody, nil)
}

// DoJSONWithHeaders 同 DoJSON，额外携带调用方指定的请求头。
func (c *Client) DoJSONWithHeaders(ctx context.Context, serviceName, method, path string, reqBody interface{}, headers map[string]string) (int, []byte, error) {
	ctx, span := c.tracer.Start(ctx, "call-"+serviceName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	ip, port, err := c.registry.Discover(serviceName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "service discovery failed")
		return 0, nil, err
	}
	url := fmt.Sprintf("http://%s:%d%s", ip, port, path)

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return 0, nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return resp.StatusCode, nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp.StatusCode, respBody, nil
}
