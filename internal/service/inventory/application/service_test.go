package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"oms/internal/pkg/apperr"
	"oms/internal/service/inventory/domain"
)

// fakeRepo 是带版本 CAS 语义的内存仓储。conflictsBeforeWrite 可以注入
// 前 N 次写回的版本冲突，用来验证 mutate 的重试路径。
type fakeRepo struct {
	mu                   sync.Mutex
	products             map[string]*domain.Product
	conflictsBeforeWrite int
	writes               int
}

func newFakeRepo(products ...*domain.Product) *fakeRepo {
	r := &fakeRepo{products: make(map[string]*domain.Product)}
	for _, p := range products {
		r.products[p.SKU] = p
	}
	return r
}

func (r *fakeRepo) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[sku]
	if !ok {
		return nil, apperr.NotFound("product", sku)
	}
	copied := *p
	return &copied, nil
}

func (r *fakeRepo) Create(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.products[product.SKU]; exists {
		return apperr.InvalidState("duplicate sku %s", product.SKU)
	}
	copied := *product
	r.products[product.SKU] = &copied
	return nil
}

func (r *fakeRepo) UpdateWithVersion(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.conflictsBeforeWrite > 0 {
		r.conflictsBeforeWrite--
		return apperr.ConcurrentModification("product", product.SKU)
	}
	stored, ok := r.products[product.SKU]
	if !ok {
		return apperr.NotFound("product", product.SKU)
	}
	if stored.Version != product.Version {
		return apperr.ConcurrentModification("product", product.SKU)
	}
	copied := *product
	copied.Version++
	r.products[product.SKU] = &copied
	product.Version++
	return nil
}

// fakeLocker 用进程内互斥量模拟 SKU 级分布式锁。
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	fail  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *fakeLocker) Acquire(ctx context.Context, sku string) (func(), error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	m, ok := l.locks[sku]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sku] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*domain.InventoryEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event *domain.InventoryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newTestService(repo *fakeRepo, locker *fakeLocker, pub *fakePublisher) *InventoryService {
	return NewInventoryService(repo, locker, pub, noop.NewTracerProvider().Tracer("test"), 3, time.Millisecond)
}

func TestReserveService(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves stock and publishes RESERVED event", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10})
		pub := &fakePublisher{}
		svc := newTestService(repo, newFakeLocker(), pub)

		product, err := svc.Reserve(ctx, "SKU-001", 4, "order-1")
		require.NoError(t, err)
		assert.Equal(t, 4, product.ReservedQuantity)
		assert.Equal(t, 6, product.AvailableQuantity())

		require.Len(t, pub.events, 1)
		event := pub.events[0]
		assert.Equal(t, domain.EventTypeReserved, event.EventType)
		assert.Equal(t, "order-1", event.OrderID)
		assert.Equal(t, 10, event.PreviousStock)
		assert.Equal(t, 6, event.NewStock)
	})

	t.Run("insufficient stock rejects without event", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 3})
		pub := &fakePublisher{}
		svc := newTestService(repo, newFakeLocker(), pub)

		_, err := svc.Reserve(ctx, "SKU-001", 4, "order-1")
		assert.Equal(t, apperr.CodeInsufficientInventory, apperr.CodeOf(err))
		assert.Empty(t, pub.events)

		stored, _ := repo.FindBySKU(ctx, "SKU-001")
		assert.Equal(t, 0, stored.ReservedQuantity)
	})

	t.Run("unknown sku returns NOT_FOUND", func(t *testing.T) {
		svc := newTestService(newFakeRepo(), newFakeLocker(), &fakePublisher{})
		_, err := svc.Reserve(ctx, "SKU-missing", 1, "order-1")
		assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	})

	t.Run("lock acquisition failure surfaces as concurrent modification", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10})
		locker := newFakeLocker()
		locker.fail = apperr.ConcurrentModification("product", "SKU-001")
		svc := newTestService(repo, locker, &fakePublisher{})

		_, err := svc.Reserve(ctx, "SKU-001", 1, "order-1")
		assert.Equal(t, apperr.CodeConcurrentModification, apperr.CodeOf(err))
	})
}

func TestVersionConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient conflicts are retried until the write lands", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10})
		repo.conflictsBeforeWrite = 2
		svc := newTestService(repo, newFakeLocker(), &fakePublisher{})

		product, err := svc.Reserve(ctx, "SKU-001", 2, "order-1")
		require.NoError(t, err)
		assert.Equal(t, 2, product.ReservedQuantity)
		assert.Equal(t, 3, repo.writes)
	})

	t.Run("conflicts beyond the retry ceiling are surfaced", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10})
		repo.conflictsBeforeWrite = 3
		svc := newTestService(repo, newFakeLocker(), &fakePublisher{})

		_, err := svc.Reserve(ctx, "SKU-001", 2, "order-1")
		assert.Equal(t, apperr.CodeConcurrentModification, apperr.CodeOf(err))
	})
}

func TestConcurrentReservations(t *testing.T) {
	// 两个并发预占合计正好等于总量：两者都应成功且不超卖
	ctx := context.Background()
	repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10})
	svc := newTestService(repo, newFakeLocker(), &fakePublisher{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, qty := range []int{6, 4} {
		wg.Add(1)
		go func(i, qty int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, "SKU-001", qty, "order-concurrent")
		}(i, qty)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := repo.FindBySKU(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.ReservedQuantity)
	assert.Equal(t, 0, stored.AvailableQuantity())

	// 池子已空，任何后续预占都必须失败
	_, err = svc.Reserve(ctx, "SKU-001", 1, "order-late")
	assert.Equal(t, apperr.CodeInsufficientInventory, apperr.CodeOf(err))
}

func TestConcurrentReservationOfLastUnit(t *testing.T) {
	// 两个订单抢最后一件：恰好一单成功，输家拿到库存不足，绝不超卖
	ctx := context.Background()
	repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 1})
	svc := newTestService(repo, newFakeLocker(), &fakePublisher{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, orderID := range []string{"order-a", "order-b"} {
		wg.Add(1)
		go func(i int, orderID string) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, "SKU-001", 1, orderID)
		}(i, orderID)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.CodeOf(err) == apperr.CodeInsufficientInventory:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	stored, err := repo.FindBySKU(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReservedQuantity)
	assert.Equal(t, 0, stored.AvailableQuantity())
}

func TestReleaseService(t *testing.T) {
	ctx := context.Background()

	t.Run("release returns stock and publishes RELEASED event", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10, ReservedQuantity: 5})
		pub := &fakePublisher{}
		svc := newTestService(repo, newFakeLocker(), pub)

		product, err := svc.Release(ctx, "SKU-001", 3, "order-1")
		require.NoError(t, err)
		assert.Equal(t, 2, product.ReservedQuantity)

		require.Len(t, pub.events, 1)
		assert.Equal(t, domain.EventTypeReleased, pub.events[0].EventType)
		assert.Equal(t, 5, pub.events[0].PreviousStock)
		assert.Equal(t, 8, pub.events[0].NewStock)
	})

	t.Run("over-release is rejected", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10, ReservedQuantity: 2})
		svc := newTestService(repo, newFakeLocker(), &fakePublisher{})

		_, err := svc.Release(ctx, "SKU-001", 3, "order-1")
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
	})
}

func TestCreateAndUpdateStock(t *testing.T) {
	ctx := context.Background()

	t.Run("creates product and rejects duplicate sku", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, newFakeLocker(), &fakePublisher{})

		resp, err := svc.CreateProduct(ctx, &CreateProductRequest{SKU: "SKU-001", Name: "widget", Quantity: 5, Price: 9.99})
		require.NoError(t, err)
		assert.Equal(t, 5, resp.AvailableQuantity)

		_, err = svc.CreateProduct(ctx, &CreateProductRequest{SKU: "SKU-001", Name: "widget"})
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
	})

	t.Run("cannot shrink quantity below reserved", func(t *testing.T) {
		repo := newFakeRepo(&domain.Product{SKU: "SKU-001", Quantity: 10, ReservedQuantity: 4})
		svc := newTestService(repo, newFakeLocker(), &fakePublisher{})

		_, err := svc.UpdateStock(ctx, "SKU-001", 3)
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))

		resp, err := svc.UpdateStock(ctx, "SKU-001", 4)
		require.NoError(t, err)
		assert.Equal(t, 0, resp.AvailableQuantity)
	})
}
