// internal/service/order/domain/status.go
package domain

// Status 定义订单的生命周期状态。
type Status string

const (
	StatusPending    Status = "PENDING"    // 已创建，等待库存确认
	StatusConfirmed  Status = "CONFIRMED"  // 库存已预占，订单确认
	StatusProcessing Status = "PROCESSING" // 备货中
	StatusShipped    Status = "SHIPPED"    // 已发货
	StatusDelivered  Status = "DELIVERED"  // 已送达（终态）
	StatusCancelled  Status = "CANCELLED"  // 已取消（终态）
	StatusFailed     Status = "FAILED"     // 处理失败（终态）
)

// transitions 是唯一的合法跃迁表。任何不在表里的跃迁都是非法的。
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusFailed},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
	StatusFailed:     {},
}

// CanTransitionTo 判断跃迁是否合法。纯函数，对任意状态对都有定义：
// 未知状态没有任何出边。
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal 终态订单不可再变更。
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0 && s.isKnown()
}

func (s Status) isKnown() bool {
	_, ok := transitions[s]
	return ok
}
