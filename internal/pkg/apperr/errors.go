// internal/pkg/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// 稳定的机器可读错误码。HTTP 层和事件消费者都依赖这些常量做分支，
// 不要随意改动字面值。
const (
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidState           = "INVALID_STATE"
	CodeInsufficientInventory  = "INSUFFICIENT_INVENTORY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeDependencyUnavailable  = "DEPENDENCY_UNAVAILABLE"
)

// Error 是所有业务错误的统一载体：一个错误码、一句人类可读的描述、
// 以及可选的结构化细节（例如 requested/available 数量）。
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is 让 errors.Is 可以按错误码匹配：两个 *Error 只要 Code 相同即视为同类。
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus 把错误码映射到等价的 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeInsufficientInventory, CodeConcurrentModification:
		return http.StatusConflict
	case CodeDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NotFound 表示订单/商品不存在。客户端错误，不重试。
func NotFound(resource, key string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, key),
		Details: map[string]interface{}{"resource": resource, "key": key},
	}
}

// InvalidState 表示非法的状态变更（状态机外的跃迁、超量释放等）。
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidOrderState 是 InvalidState 的订单状态机特化，携带 current/target。
func InvalidOrderState(current, target string) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot transition order from %s to %s", current, target),
		Details: map[string]interface{}{"current": current, "target": target},
	}
}

// InsufficientInventory 是业务拒绝而非故障：库存不够预占。
// 它会触发 Saga 补偿，但不应该被当成 bug 上报。
func InsufficientInventory(sku string, requested, available int) *Error {
	return &Error{
		Code:    CodeInsufficientInventory,
		Message: fmt.Sprintf("insufficient inventory for sku %s: requested %d, available %d", sku, requested, available),
		Details: map[string]interface{}{"sku": sku, "requested": requested, "available": available},
	}
}

// ConcurrentModification 表示乐观锁版本冲突。瞬态错误，调用方应在
// 有限次数内退避重试，重试耗尽后才向上抛出。
func ConcurrentModification(resource, key string) *Error {
	return &Error{
		Code:    CodeConcurrentModification,
		Message: fmt.Sprintf("concurrent modification of %s %s", resource, key),
		Details: map[string]interface{}{"resource": resource, "key": key},
	}
}

// DependencyUnavailable 表示远端依赖超时或不可达，触发 Saga 补偿，
// 并计入订单的重试上限。
func DependencyUnavailable(service string, cause error) *Error {
	return &Error{
		Code:    CodeDependencyUnavailable,
		Message: fmt.Sprintf("dependency unavailable: %s", service),
		Details: map[string]interface{}{"service": service},
		cause:   cause,
	}
}

// CodeOf 返回错误的业务码；非业务错误一律归为空串。
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable 判断错误是否值得 Saga 再次发起整轮处理。
// 业务拒绝（库存不足）和依赖不可用都可以重试；客户端错误不行。
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeInsufficientInventory, CodeDependencyUnavailable, CodeConcurrentModification:
		return true
	}
	return false
}
