package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusFailed}

	allowed := map[Status]map[Status]bool{
		StatusPending:    {StatusConfirmed: true, StatusCancelled: true, StatusFailed: true},
		StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
		StatusProcessing: {StatusShipped: true, StatusCancelled: true},
		StatusShipped:    {StatusDelivered: true},
		StatusDelivered:  {},
		StatusCancelled:  {},
		StatusFailed:     {},
	}

	// 全组合断言：跃迁表之外的任何状态对都必须被拒绝
	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			want := allowed[from][to]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionToUnknownStatus(t *testing.T) {
	// 未知状态没有出边，也不能作为目标
	assert.False(t, Status("BOGUS").CanTransitionTo(StatusPending))
	assert.False(t, StatusPending.CanTransitionTo(Status("BOGUS")))
	// 自环也不合法
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())

	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())

	// 未知状态虽然没有出边，但不算终态
	assert.False(t, Status("BOGUS").IsTerminal())
}
