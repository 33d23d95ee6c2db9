package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/pkg/apperr"
)

func newProduct(quantity, reserved int) *Product {
	return &Product{
		ID:               "p-1",
		SKU:              "SKU-001",
		Name:             "widget",
		Quantity:         quantity,
		ReservedQuantity: reserved,
	}
}

func TestReserve(t *testing.T) {
	t.Run("reserves within available stock", func(t *testing.T) {
		p := newProduct(10, 3)
		require.NoError(t, p.Reserve(5))
		assert.Equal(t, 8, p.ReservedQuantity)
		assert.Equal(t, 2, p.AvailableQuantity())
	})

	t.Run("reserving exactly the available quantity empties the pool", func(t *testing.T) {
		p := newProduct(10, 3)
		require.NoError(t, p.Reserve(7))
		assert.Equal(t, 0, p.AvailableQuantity())
	})

	t.Run("one unit over available is rejected without mutation", func(t *testing.T) {
		p := newProduct(10, 3)
		err := p.Reserve(8)
		require.Error(t, err)
		assert.Equal(t, apperr.CodeInsufficientInventory, apperr.CodeOf(err))
		assert.Equal(t, 3, p.ReservedQuantity)
		assert.Equal(t, 7, p.AvailableQuantity())

		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, 8, appErr.Details["requested"])
		assert.Equal(t, 7, appErr.Details["available"])
	})

	t.Run("non-positive quantity is rejected", func(t *testing.T) {
		p := newProduct(10, 0)
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(p.Reserve(0)))
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(p.Reserve(-2)))
	})
}

func TestRelease(t *testing.T) {
	t.Run("releases reserved stock back to available", func(t *testing.T) {
		p := newProduct(10, 6)
		require.NoError(t, p.Release(4))
		assert.Equal(t, 2, p.ReservedQuantity)
		assert.Equal(t, 8, p.AvailableQuantity())
	})

	t.Run("over-release is rejected, reserved never goes negative", func(t *testing.T) {
		p := newProduct(10, 2)
		err := p.Release(3)
		require.Error(t, err)
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
		assert.Equal(t, 2, p.ReservedQuantity)
	})
}

func TestConfirmDeduction(t *testing.T) {
	t.Run("moves reserved stock out of the warehouse", func(t *testing.T) {
		p := newProduct(10, 4)
		available := p.AvailableQuantity()
		require.NoError(t, p.ConfirmDeduction(4))
		assert.Equal(t, 6, p.Quantity)
		assert.Equal(t, 0, p.ReservedQuantity)
		// 扣减动的是预占，外部可见的可售量不变
		assert.Equal(t, available, p.AvailableQuantity())
	})

	t.Run("cannot deduct more than reserved", func(t *testing.T) {
		p := newProduct(10, 4)
		err := p.ConfirmDeduction(5)
		require.Error(t, err)
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
		assert.Equal(t, 10, p.Quantity)
		assert.Equal(t, 4, p.ReservedQuantity)
	})
}
