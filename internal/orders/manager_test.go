package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyaghar/teashop/internal/broadcast"
	"github.com/chiyaghar/teashop/internal/domain"
	"github.com/chiyaghar/teashop/internal/notify"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu      sync.Mutex
	ready   bool
	fail    bool
	panics  bool
	orders  map[string]*domain.Order
	list    []domain.Order
	creates int
	updates []domain.Status
	paid    []domain.Payment
}

func newFakeStore() *fakeStore {
	return &fakeStore{ready: true, orders: make(map[string]*domain.Order)}
}

func (s *fakeStore) Ready() bool { return s.ready }

func (s *fakeStore) Create(_ context.Context, o *domain.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("connection reset")
	}
	s.creates++
	if s.fail {
		return false
	}
	s.orders[o.ID] = o.Clone()
	return true
}

func (s *fakeStore) FindByID(_ context.Context, id string) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil
	}
	return s.orders[id].Clone()
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, st domain.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, st)
	if s.fail {
		return false
	}
	if o, ok := s.orders[id]; ok {
		o.Status = st
		return true
	}
	return false
}

func (s *fakeStore) MarkPaid(_ context.Context, id string, paidAt int64, p domain.Payment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid = append(s.paid, p)
	if s.fail {
		return false
	}
	if o, ok := s.orders[id]; ok {
		o.Status = domain.StatusPaid
		o.PaidAt = &paidAt
		o.Payment = &p
		return true
	}
	return false
}

func (s *fakeStore) ListRecent(_ context.Context, limit int) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) > limit {
		return s.list[:limit]
	}
	return s.list
}

type publishedEvent struct {
	orderID string
	event   string
	status  domain.Status
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, orderID, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ev := payload.(StatusEvent)
	p.events = append(p.events, publishedEvent{orderID, event, ev.Status})
	return nil
}

func (p *fakePublisher) statuses() []domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Status, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.status)
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *fakeNotifier) SendSMS(_ context.Context, to, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, to+": "+message)
	return true
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type fixture struct {
	m        *Manager
	store    *fakeStore
	pub      *fakePublisher
	notifier *fakeNotifier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    newFakeStore(),
		pub:      &fakePublisher{},
		notifier: &fakeNotifier{},
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	f.m = NewManager(f.store, f.pub, f.notifier, testLogger(), opts...)
	t.Cleanup(f.m.Wait)
	return f
}

func teaItems() []domain.Item {
	return []domain.Item{
		{Name: "Masala chai", Qty: 2, PriceNPR: 30},
		{Name: "Samosa", Qty: 1, PriceNPR: 20},
	}
}

func TestManager_Create(t *testing.T) {
	f := newFixture(t)

	res, err := f.m.Create(context.Background(), CreateRequest{
		Items:    teaItems(),
		Customer: &domain.Customer{Name: "Sita", Phone: "9800000000"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Order.ID)
	assert.Equal(t, 80.0, res.Order.TotalNPR)
	assert.Equal(t, domain.StatusReceived, res.Order.Status)
	assert.Equal(t, domain.DefaultPaymentMethod, res.Order.PaymentMethod)
	assert.Equal(t, testNow.UnixMilli(), res.Order.CreatedAt)
	assert.Nil(t, res.Order.PaidAt)
	assert.Equal(t, Effects{Store: OutcomeSuccess, Notify: OutcomeSuccess, Publish: OutcomeSuccess}, res.Effects)

	assert.Equal(t, 1, f.m.Ledger().Len())
	assert.Equal(t, 1, f.store.creates)
	assert.Equal(t, []domain.Status{domain.StatusReceived}, f.pub.statuses())

	f.m.Wait()
	assert.Equal(t, []string{"9800000000: " + notify.ReceivedMessage(res.Order)}, f.notifier.messages())
}

func TestManager_CreateNormalizesItems(t *testing.T) {
	f := newFixture(t)

	res, err := f.m.Create(context.Background(), CreateRequest{
		Items:         []domain.Item{{Name: "  Lemon tea ", Qty: 1.5, PriceNPR: 40}},
		PaymentMethod: "esewa",
	})
	require.NoError(t, err)

	assert.Equal(t, "Lemon tea", res.Order.Items[0].Name)
	assert.Equal(t, 60.0, res.Order.TotalNPR)
	assert.Equal(t, "esewa", res.Order.PaymentMethod)
	assert.Equal(t, OutcomeSkipped, res.Effects.Notify, "no phone, no text")
}

func TestManager_CreateRejectsInvalidItems(t *testing.T) {
	tests := []struct {
		name    string
		items   []domain.Item
		message string
	}{
		{"no items", nil, "Items are required"},
		{"zero qty", []domain.Item{{Name: "Chai", Qty: 0, PriceNPR: 30}}, "Item 0: qty must be a positive number"},
		{"negative qty", []domain.Item{{Name: "Chai", Qty: -1, PriceNPR: 30}}, "Item 0: qty must be a positive number"},
		{"negative price", []domain.Item{{Name: "Chai", Qty: 1, PriceNPR: -5}}, "Item 0: priceNpr must be a non-negative number"},
		{"NaN qty", []domain.Item{{Name: "Chai", Qty: math.NaN(), PriceNPR: 30}}, "Item 0: qty must be a positive number"},
		{"infinite price", []domain.Item{{Name: "Chai", Qty: 1, PriceNPR: math.Inf(1)}}, "Item 0: priceNpr must be a non-negative number"},
		{"blank name", []domain.Item{{Name: "Chai", Qty: 1, PriceNPR: 1}, {Name: "   ", Qty: 1, PriceNPR: 1}}, "Item 1: name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			res, err := f.m.Create(context.Background(), CreateRequest{Items: tt.items})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, IsValidation(err))
			assert.Equal(t, tt.message, err.Error())

			assert.Zero(t, f.m.Ledger().Len())
			assert.Zero(t, f.store.creates)
			assert.Empty(t, f.pub.statuses())
		})
	}
}

func TestManager_CreateSurvivesStoreFailure(t *testing.T) {
	t.Run("store refuses write", func(t *testing.T) {
		f := newFixture(t)
		f.store.fail = true

		res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, res.Effects.Store)

		got, err := f.m.Get(context.Background(), res.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Order.ID, got.ID)
	})

	t.Run("store panics", func(t *testing.T) {
		f := newFixture(t)
		f.store.panics = true

		res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, res.Effects.Store)
		assert.Equal(t, OutcomeSuccess, res.Effects.Publish)
	})

	t.Run("store unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.store.ready = false

		res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, res.Effects.Store)
		assert.Zero(t, f.store.creates)
	})

	t.Run("publisher fails", func(t *testing.T) {
		f := newFixture(t)
		f.pub.err = errors.New("hub closed")

		res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, res.Effects.Publish)
		assert.Equal(t, 1, f.m.Ledger().Len())
	})
}

func TestManager_CreateRecoversUnexpectedPanic(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { panic("entropy exhausted") }))

	res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrCreateFailed)
	assert.False(t, IsValidation(err))
}

func TestManager_Get(t *testing.T) {
	f := newFixture(t)

	res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
	require.NoError(t, err)

	got, err := f.m.Get(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order, got)

	got.Status = domain.StatusCompleted
	again, _ := f.m.Get(context.Background(), res.Order.ID)
	assert.Equal(t, domain.StatusReceived, again.Status, "callers get copies")

	f.store.orders["from-db"] = &domain.Order{ID: "from-db", Status: domain.StatusReady, TotalNPR: 45}
	got, err = f.m.Get(context.Background(), "from-db")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, got.Status)

	_, err = f.m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UpdateStatus(t *testing.T) {
	f := newFixture(t)

	res, err := f.m.Create(context.Background(), CreateRequest{
		Items:    teaItems(),
		Customer: &domain.Customer{Phone: "9811111111"},
	})
	require.NoError(t, err)
	id := res.Order.ID

	brewing, err := f.m.UpdateStatus(context.Background(), id, "brewing")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBrewing, brewing.Order.Status)
	assert.Equal(t, OutcomeSkipped, brewing.Effects.Notify)

	ready, err := f.m.UpdateStatus(context.Background(), id, "ready")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, ready.Effects.Notify)

	f.m.Wait()
	assert.Equal(t, []string{
		"9811111111: " + notify.ReceivedMessage(res.Order),
		"9811111111: " + notify.ReadyMessage(ready.Order),
	}, f.notifier.messages())

	assert.Equal(t, []domain.Status{domain.StatusReceived, domain.StatusBrewing, domain.StatusReady}, f.pub.statuses())
	assert.Equal(t, []domain.Status{domain.StatusBrewing, domain.StatusReady}, f.store.updates)

	got, _ := f.m.Get(context.Background(), id)
	assert.Equal(t, domain.StatusReady, got.Status)
}

func TestManager_UpdateStatusAllowsAnyTransition(t *testing.T) {
	f := newFixture(t)
	res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
	require.NoError(t, err)

	for _, st := range []string{"completed", "received", "paid", "brewing"} {
		upd, err := f.m.UpdateStatus(context.Background(), res.Order.ID, st)
		require.NoError(t, err)
		assert.Equal(t, domain.Status(st), upd.Order.Status)
	}
}

func TestManager_UpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
	require.NoError(t, err)

	_, err = f.m.UpdateStatus(context.Background(), res.Order.ID, "shipped")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.m.UpdateStatus(context.Background(), "missing", "shipped")
	assert.ErrorIs(t, err, ErrInvalidStatus, "status is checked before lookup")

	got, _ := f.m.Get(context.Background(), res.Order.ID)
	assert.Equal(t, domain.StatusReceived, got.Status)
	assert.Len(t, f.pub.statuses(), 1)
	assert.Empty(t, f.store.updates)
}

func TestManager_UpdateStatusStoreOnlyOrder(t *testing.T) {
	f := newFixture(t)
	f.store.orders["old"] = &domain.Order{
		ID:       "old",
		Status:   domain.StatusBrewing,
		Customer: &domain.Customer{Phone: "9822222222"},
	}

	res, err := f.m.UpdateStatus(context.Background(), "old", "ready")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, res.Order.Status)
	assert.Equal(t, OutcomeSuccess, res.Effects.Store)
	assert.Equal(t, domain.StatusReady, f.store.orders["old"].Status)

	f.m.Wait()
	assert.Len(t, f.notifier.messages(), 1)
	assert.Zero(t, f.m.Ledger().Len(), "store-only orders are not pulled into the ledger")

	_, err = f.m.UpdateStatus(context.Background(), "nowhere", "ready")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_MarkPaid(t *testing.T) {
	f := newFixture(t)
	res, err := f.m.Create(context.Background(), CreateRequest{
		Items:    teaItems(),
		Customer: &domain.Customer{Phone: "9833333333"},
	})
	require.NoError(t, err)

	verified := true
	paid, ok := f.m.MarkPaid(context.Background(), res.Order.ID, domain.Payment{Provider: "khalti", ReferenceID: "pidx-1"})
	require.True(t, ok)
	paid, ok = f.m.MarkPaid(context.Background(), res.Order.ID, domain.Payment{Verified: &verified, Raw: map[string]any{"amount": 8000}})
	require.True(t, ok)

	assert.Equal(t, domain.StatusPaid, paid.Order.Status)
	require.NotNil(t, paid.Order.PaidAt)
	assert.Equal(t, testNow.UnixMilli(), *paid.Order.PaidAt)
	require.NotNil(t, paid.Order.Payment)
	assert.Equal(t, "khalti", paid.Order.Payment.Provider)
	assert.Equal(t, "pidx-1", paid.Order.Payment.ReferenceID)
	assert.True(t, *paid.Order.Payment.Verified)

	require.Len(t, f.store.paid, 2)
	assert.Equal(t, "khalti", f.store.paid[1].Provider, "store receives the merged payment")
	assert.Equal(t, domain.StatusPaid, f.store.orders[res.Order.ID].Status)

	f.m.Wait()
	msgs := f.notifier.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "9833333333: "+notify.PaidMessage(paid.Order), msgs[2])
}

func TestManager_MarkPaidRequiresLedgerEntry(t *testing.T) {
	f := newFixture(t)
	f.store.orders["old"] = &domain.Order{ID: "old", Status: domain.StatusReady}

	res, ok := f.m.MarkPaid(context.Background(), "old", domain.Payment{Provider: "esewa"})
	assert.False(t, ok)
	assert.Nil(t, res)
	assert.Empty(t, f.store.paid)
	assert.Empty(t, f.pub.statuses())
}

func TestManager_ListRecent(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for range 3 {
		res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
		require.NoError(t, err)
		ids = append(ids, res.Order.ID)
	}

	t.Run("store result preferred", func(t *testing.T) {
		f.store.list = []domain.Order{{ID: "db-2"}, {ID: "db-1"}}
		defer func() { f.store.list = nil }()

		list := f.m.ListRecent(context.Background(), 10)
		require.Len(t, list, 2)
		assert.Equal(t, "db-2", list[0].ID)
	})

	t.Run("ledger when store is empty", func(t *testing.T) {
		list := f.m.ListRecent(context.Background(), 2)
		require.Len(t, list, 2)
		assert.Equal(t, ids[2], list[0].ID)
		assert.Equal(t, ids[1], list[1].ID)
	})

	t.Run("ledger when store is unavailable", func(t *testing.T) {
		f.store.ready = false
		defer func() { f.store.ready = true }()
		f.store.list = []domain.Order{{ID: "db-1"}}
		defer func() { f.store.list = nil }()

		list := f.m.ListRecent(context.Background(), 0)
		assert.Len(t, list, 3)
	})
}

func TestManager_ListRecentClampsLimit(t *testing.T) {
	f := newFixture(t)
	for i := range MaxListLimit + 5 {
		f.store.list = append(f.store.list, domain.Order{ID: string(rune('a' + i%26))})
	}

	assert.Len(t, f.m.ListRecent(context.Background(), 1000), MaxListLimit)
	assert.Len(t, f.m.ListRecent(context.Background(), -1), DefaultListLimit)
}

func TestManager_NilCollaborators(t *testing.T) {
	m := NewManager(nil, nil, nil, testLogger())

	res, err := m.Create(context.Background(), CreateRequest{
		Items:    teaItems(),
		Customer: &domain.Customer{Phone: "9800000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, Effects{}, res.Effects)

	_, err = m.UpdateStatus(context.Background(), res.Order.ID, "ready")
	require.NoError(t, err)
	_, ok := m.MarkPaid(context.Background(), res.Order.ID, domain.Payment{})
	assert.True(t, ok)
	assert.Len(t, m.ListRecent(context.Background(), 0), 1)
}

type frameRecorder struct {
	mu     sync.Mutex
	frames []broadcast.Frame
}

func (r *frameRecorder) Send(f broadcast.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !f.KeepAlive {
		r.frames = append(r.frames, f)
	}
	return nil
}

func (r *frameRecorder) snapshot() []broadcast.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]broadcast.Frame(nil), r.frames...)
}

func TestManager_LifecycleReachesListener(t *testing.T) {
	hub := broadcast.NewHub(testLogger())
	notifier := &fakeNotifier{}
	m := NewManager(newFakeStore(), hub, notifier, testLogger(),
		WithIDGenerator(func() string { return "order-1" }),
		WithClock(func() time.Time { return testNow }),
	)
	defer m.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &frameRecorder{}
	sub := hub.Subscribe(ctx, "order-1", rec)

	_, err := m.Create(ctx, CreateRequest{Items: teaItems(), Customer: &domain.Customer{Phone: "9844444444"}})
	require.NoError(t, err)
	_, err = m.UpdateStatus(ctx, "order-1", "brewing")
	require.NoError(t, err)
	_, ok := m.MarkPaid(ctx, "order-1", domain.Payment{Provider: "esewa"})
	require.True(t, ok)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, 5*time.Millisecond)

	frames := rec.snapshot()
	assert.Equal(t, broadcast.EventConnected, frames[0].Event)
	assert.JSONEq(t, `{"orderId":"order-1"}`, string(frames[0].Data))

	var got []domain.Status
	for _, fr := range frames[1:] {
		assert.Equal(t, EventStatus, fr.Event)
		var ev StatusEvent
		require.NoError(t, json.Unmarshal(fr.Data, &ev))
		got = append(got, ev.Status)
	}
	assert.Equal(t, []domain.Status{domain.StatusReceived, domain.StatusBrewing, domain.StatusPaid}, got)

	order, err := m.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, order.Status)
	assert.Equal(t, "esewa", order.Payment.Provider)

	sub.Close()
	<-sub.Done()
	assert.Zero(t, hub.Count("order-1"))

	m.Wait()
	assert.Len(t, notifier.messages(), 2, "received and paid")
}

func TestManager_ConcurrentUpdatesKeepPublishOrder(t *testing.T) {
	f := newFixture(t)
	res, err := f.m.Create(context.Background(), CreateRequest{Items: teaItems()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, st := range []string{"brewing", "ready", "completed", "brewing", "ready"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.m.UpdateStatus(context.Background(), res.Order.ID, st)
		}()
	}
	wg.Wait()

	statuses := f.pub.statuses()
	require.Len(t, statuses, 6)
	got, _ := f.m.Get(context.Background(), res.Order.ID)
	assert.Equal(t, statuses[len(statuses)-1], got.Status, "last published status is the stored one")
	assert.Equal(t, f.store.updates[len(f.store.updates)-1], got.Status)
}
