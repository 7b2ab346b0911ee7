package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TFMV/batchpress/internal/types"
	"github.com/TFMV/batchpress/planner"
)

type fakeOrderStore struct {
	mu        sync.Mutex
	orders    []types.Order
	added     []types.Order
	resetTo   []types.Order
	submitted int
}

func (f *fakeOrderStore) ListOrders(ctx context.Context) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Order, len(f.orders))
	copy(out, f.orders)
	return out, nil
}

func (f *fakeOrderStore) AddOrder(ctx context.Context, order types.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, order)
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeOrderStore) ResetOrders(ctx context.Context, seed []types.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetTo = seed
	f.orders = append([]types.Order(nil), seed...)
	return nil
}

func (f *fakeOrderStore) SubmitPlanRequest(ctx context.Context, start time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	return "req-1", nil
}

func newTestServer(t *testing.T, orders []types.Order) (*Server, *fakeOrderStore) {
	t.Helper()
	store := &fakeOrderStore{orders: orders}
	server, err := NewServer(Config{Store: store, Planner: planner.New(planner.Config{})})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server, store
}

func postForm(handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersSchedule(t *testing.T) {
	server, _ := newTestServer(t, SeedOrders(time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	for _, want := range []string{"BATCH-0001", "BATCH-0002", "BATCH-0003", "Saved:", "URGENT"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
}

func TestIndexEmptyState(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); !strings.Contains(body, "No orders yet") {
		t.Error("empty index should render the empty state")
	}
}

func TestAddOrder(t *testing.T) {
	server, store := newTestServer(t, nil)

	rec := postForm(server.Handler(), "/orders", url.Values{
		"id":         {"ORDER-9"},
		"print_mode": {"color"},
		"quantity":   {"4000"},
		"priority":   {"1"},
	})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST /orders status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); got != "/" {
		t.Errorf("redirect Location = %q, want /", got)
	}

	if len(store.added) != 1 {
		t.Fatalf("added %d orders, want 1", len(store.added))
	}
	order := store.added[0]
	if order.ID != "ORDER-9" || order.Quantity != 4000 || order.Priority != 1 {
		t.Errorf("stored order = %+v", order)
	}
	if order.PrintMode != types.PrintModeColor {
		t.Errorf("stored print mode = %q, want color", order.PrintMode)
	}
	if order.PaperType != types.PaperPlain || order.MachineClass != types.MachineRoll {
		t.Errorf("form defaults = %q/%q", order.PaperType, order.MachineClass)
	}
	if order.Deadline.Before(time.Now().Add(6 * 24 * time.Hour)) {
		t.Errorf("deadline %v should default to about a week out", order.Deadline)
	}
}

func TestAddOrderBadQuantity(t *testing.T) {
	server, store := newTestServer(t, nil)

	rec := postForm(server.Handler(), "/orders", url.Values{
		"id":         {"ORDER-9"},
		"print_mode": {"color"},
		"quantity":   {"lots"},
		"priority":   {"0"},
	})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); !strings.Contains(got, "err=") {
		t.Errorf("Location = %q, want an err param", got)
	}
	if len(store.added) != 0 {
		t.Errorf("added %d orders, want 0", len(store.added))
	}
}

func TestAddOrderInvalidMode(t *testing.T) {
	server, store := newTestServer(t, nil)

	rec := postForm(server.Handler(), "/orders", url.Values{
		"id":         {"ORDER-9"},
		"print_mode": {"sepia"},
		"quantity":   {"4000"},
		"priority":   {"0"},
	})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); !strings.Contains(got, "err=") {
		t.Errorf("Location = %q, want an err param", got)
	}
	if len(store.added) != 0 {
		t.Errorf("added %d orders, want 0", len(store.added))
	}
}

func TestAddOrderMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /orders status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestReset(t *testing.T) {
	server, store := newTestServer(t, nil)

	rec := postForm(server.Handler(), "/api/reset", url.Values{})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST /api/reset status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if len(store.resetTo) != 3 {
		t.Errorf("reset to %d orders, want 3 seed orders", len(store.resetTo))
	}
}

func TestPlan(t *testing.T) {
	server, store := newTestServer(t, nil)

	rec := postForm(server.Handler(), "/api/plan", url.Values{})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST /api/plan status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if store.submitted != 1 {
		t.Errorf("submitted %d plan requests, want 1", store.submitted)
	}
}

func TestFlashError(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/?err=quantity+must+be+a+number", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); !strings.Contains(body, "quantity must be a number") {
		t.Error("flash message should be rendered")
	}
}
