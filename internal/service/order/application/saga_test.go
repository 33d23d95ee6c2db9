package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"oms/internal/pkg/apperr"
	"oms/internal/service/order/domain"
	"oms/internal/service/order/port"
)

// fakeOrderRepo 是带版本 CAS 的内存订单仓储。
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newFakeOrderRepo(orders ...*domain.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (r *fakeOrderRepo) UpdateWithVersion(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return apperr.NotFound("order", order.ID)
	}
	if stored.Version != order.Version {
		return apperr.ConcurrentModification("order", order.ID)
	}
	copied := cloneOrder(order)
	copied.Version++
	r.orders[order.ID] = copied
	order.Version++
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	copied := *o
	copied.Items = make([]*domain.OrderItem, len(o.Items))
	for i, item := range o.Items {
		itemCopy := *item
		copied.Items[i] = &itemCopy
	}
	return &copied
}

// fakeInventory 记录每一次预占/释放调用，并允许按 SKU 注入预占失败。
type fakeInventory struct {
	mu         sync.Mutex
	products   map[string]*port.ProductInfo
	reserveErr map[string]error
	reserves   []string
	releases   []string
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		products:   make(map[string]*port.ProductInfo),
		reserveErr: make(map[string]error),
	}
}

func (f *fakeInventory) addProduct(sku, name string, price float64) {
	f.products[sku] = &port.ProductInfo{SKU: sku, Name: name, Price: price}
}

func (f *fakeInventory) GetProduct(ctx context.Context, sku string) (*port.ProductInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[sku]
	if !ok {
		return nil, apperr.NotFound("product", sku)
	}
	return p, nil
}

func (f *fakeInventory) Reserve(ctx context.Context, sku string, qty int, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reserveErr[sku]; err != nil {
		return err
	}
	f.reserves = append(f.reserves, sku)
	return nil
}

func (f *fakeInventory) Release(ctx context.Context, sku string, qty int, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, sku)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*domain.OrderEvent
}

func (f *fakeEvents) Publish(ctx context.Context, event *domain.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) last() *domain.OrderEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

func newSagaFixture(t *testing.T, items ...domain.NewOrderItemInput) (*OrderApplicationService, *fakeOrderRepo, *fakeInventory, *fakeEvents, string) {
	t.Helper()
	order, err := domain.NewOrder("cust-1", "1 Main St", items)
	require.NoError(t, err)

	repo := newFakeOrderRepo(order)
	inventory := newFakeInventory()
	events := &fakeEvents{}
	svc := NewOrderApplicationService(repo, inventory, events,
		noop.NewTracerProvider().Tracer("test"), 3)
	return svc, repo, inventory, events, order.ID
}

func TestProcessOrderSuccess(t *testing.T) {
	svc, repo, inventory, events, orderID := newSagaFixture(t,
		domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 2},
		domain.NewOrderItemInput{SKU: "SKU-002", Quantity: 1},
	)
	inventory.addProduct("SKU-001", "widget", 10.00)
	inventory.addProduct("SKU-002", "gadget", 5.50)

	require.NoError(t, svc.ProcessOrder(context.Background(), orderID))

	stored, err := repo.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)
	assert.Equal(t, 25.50, stored.TotalAmount)
	assert.Equal(t, "widget", stored.Items[0].ProductName)
	assert.Equal(t, 20.00, stored.Items[0].Subtotal)
	assert.Zero(t, stored.RetryCount)

	assert.Equal(t, []string{"SKU-001", "SKU-002"}, inventory.reserves)
	assert.Empty(t, inventory.releases)

	event := events.last()
	require.NotNil(t, event)
	assert.Equal(t, domain.StatusConfirmed, event.NewStatus)
}

func TestProcessOrderPartialFailureCompensates(t *testing.T) {
	svc, repo, inventory, events, orderID := newSagaFixture(t,
		domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 1},
		domain.NewOrderItemInput{SKU: "SKU-002", Quantity: 1},
		domain.NewOrderItemInput{SKU: "SKU-003", Quantity: 1},
	)
	inventory.addProduct("SKU-001", "a", 1)
	inventory.addProduct("SKU-002", "b", 1)
	inventory.addProduct("SKU-003", "c", 1)
	inventory.reserveErr["SKU-003"] = apperr.InsufficientInventory("SKU-003", 1, 0)

	err := svc.ProcessOrder(context.Background(), orderID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientInventory, apperr.CodeOf(err))

	// 只补偿本轮已预占的前两行，失败行没有占到不能释放
	assert.Equal(t, []string{"SKU-001", "SKU-002"}, inventory.reserves)
	assert.Equal(t, []string{"SKU-001", "SKU-002"}, inventory.releases)

	stored, _ := repo.FindByID(context.Background(), orderID)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.NotEmpty(t, stored.FailureReason)

	event := events.last()
	require.NotNil(t, event)
	assert.Equal(t, domain.StatusPending, event.NewStatus)
	assert.NotEmpty(t, event.Reason)
}

func TestProcessOrderRetryCeiling(t *testing.T) {
	svc, repo, inventory, _, orderID := newSagaFixture(t,
		domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 1},
	)
	inventory.addProduct("SKU-001", "a", 1)
	inventory.reserveErr["SKU-001"] = apperr.DependencyUnavailable("inventory-service", nil)

	// 前两轮失败后订单仍留在 PENDING 可重试
	for i := 1; i <= 2; i++ {
		require.Error(t, svc.ProcessOrder(context.Background(), orderID))
		stored, _ := repo.FindByID(context.Background(), orderID)
		assert.Equal(t, domain.StatusPending, stored.Status)
		assert.Equal(t, i, stored.RetryCount)
	}

	// 第三轮达到上限，终态 FAILED
	require.Error(t, svc.ProcessOrder(context.Background(), orderID))
	stored, _ := repo.FindByID(context.Background(), orderID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)

	// 终态订单的重复投递是无害的 no-op
	require.NoError(t, svc.ProcessOrder(context.Background(), orderID))
	stored, _ = repo.FindByID(context.Background(), orderID)
	assert.Equal(t, 3, stored.RetryCount)
}

func TestProcessOrderSkipsNonPending(t *testing.T) {
	svc, repo, inventory, _, orderID := newSagaFixture(t,
		domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 1},
	)
	inventory.addProduct("SKU-001", "a", 1)

	stored, _ := repo.FindByID(context.Background(), orderID)
	require.NoError(t, stored.TransitionTo(domain.StatusConfirmed))
	require.NoError(t, repo.UpdateWithVersion(context.Background(), stored))

	// 重复投递：已确认的订单不再触碰库存
	require.NoError(t, svc.ProcessOrder(context.Background(), orderID))
	assert.Empty(t, inventory.reserves)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("cancelling a confirmed order releases every reservation", func(t *testing.T) {
		svc, repo, inventory, events, orderID := newSagaFixture(t,
			domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 2},
			domain.NewOrderItemInput{SKU: "SKU-002", Quantity: 1},
		)
		inventory.addProduct("SKU-001", "a", 1)
		inventory.addProduct("SKU-002", "b", 1)
		require.NoError(t, svc.ProcessOrder(ctx, orderID))

		resp, err := svc.CancelOrder(ctx, orderID, "customer changed mind")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, resp.Status)

		assert.ElementsMatch(t, []string{"SKU-001", "SKU-002"}, inventory.releases)

		stored, _ := repo.FindByID(ctx, orderID)
		assert.Equal(t, domain.StatusCancelled, stored.Status)
		assert.Equal(t, "customer changed mind", stored.FailureReason)

		event := events.last()
		require.NotNil(t, event)
		assert.Equal(t, domain.StatusCancelled, event.NewStatus)
	})

	t.Run("cancelling a pending order releases nothing", func(t *testing.T) {
		svc, _, inventory, _, orderID := newSagaFixture(t,
			domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 1},
		)

		resp, err := svc.CancelOrder(ctx, orderID, "too slow")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, resp.Status)
		assert.Empty(t, inventory.releases)
	})

	t.Run("terminal orders cannot be cancelled", func(t *testing.T) {
		svc, repo, _, _, orderID := newSagaFixture(t,
			domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 1},
		)
		stored, _ := repo.FindByID(ctx, orderID)
		require.NoError(t, stored.TransitionTo(domain.StatusFailed))
		require.NoError(t, repo.UpdateWithVersion(ctx, stored))

		_, err := svc.CancelOrder(ctx, orderID, "too late")
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
	})
}

func TestUpdateStatusFlow(t *testing.T) {
	ctx := context.Background()
	svc, repo, inventory, _, orderID := newSagaFixture(t,
		domain.NewOrderItemInput{SKU: "SKU-001", Quantity: 1},
	)
	inventory.addProduct("SKU-001", "a", 2.50)
	require.NoError(t, svc.ProcessOrder(ctx, orderID))

	// 正常履约路径 CONFIRMED -> PROCESSING -> SHIPPED -> DELIVERED
	for _, target := range []domain.Status{domain.StatusProcessing, domain.StatusShipped, domain.StatusDelivered} {
		resp, err := svc.UpdateStatus(ctx, orderID, target, "")
		require.NoError(t, err)
		assert.Equal(t, target, resp.Status)
	}

	// 终态之后任何流转都被拒绝
	_, err := svc.UpdateStatus(ctx, orderID, domain.StatusCancelled, "")
	assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))

	stored, _ := repo.FindByID(ctx, orderID)
	assert.Equal(t, domain.StatusDelivered, stored.Status)
}
