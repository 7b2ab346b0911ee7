// Package dashboard serves the batching demo UI over HTTP.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TFMV/batchpress/internal/types"
	"github.com/TFMV/batchpress/planner"
)

//go:embed templates/index.gohtml
var templateFS embed.FS

// OrderStore is the slice of the metadata store the dashboard needs.
type OrderStore interface {
	ListOrders(ctx context.Context) ([]types.Order, error)
	AddOrder(ctx context.Context, order types.Order) error
	ResetOrders(ctx context.Context, seed []types.Order) error
	SubmitPlanRequest(ctx context.Context, start time.Time) (string, error)
}

// Config contains configuration options for the dashboard server.
type Config struct {
	// Addr is the address to listen on (e.g., "localhost:8090")
	Addr string

	// Store holds the order list and accepts plan requests.
	Store OrderStore

	// Planner computes the displayed plan. Defaults to a planner with
	// default configuration.
	Planner *planner.Planner
}

// Server renders the batching dashboard and accepts order submissions.
type Server struct {
	addr       string
	store      OrderStore
	planner    *planner.Planner
	log        *logrus.Logger
	tpl        *template.Template
	httpServer *http.Server
}

// OrderRow is one row of the dashboard's order table.
type OrderRow struct {
	Index  int
	Order  types.Order
	Urgent bool
}

// ViewModel carries everything the index template renders.
type ViewModel struct {
	Orders       []OrderRow
	HasOrders    bool
	NextOrderNum int
	Metrics      types.Metrics
	Gantt        []GanttRow
	Compare      Comparison
	FlashError   string
}

// NewServer creates a dashboard server over the given store.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = "localhost:8090"
	}

	if cfg.Planner == nil {
		cfg.Planner = planner.New(planner.Config{})
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	funcs := template.FuncMap{
		"fmtDur": fmtDuration,
		"fmtPct": fmtPercent,
	}

	tpl, err := template.New("index.gohtml").Funcs(funcs).ParseFS(templateFS, "templates/index.gohtml")
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}

	s := &Server{
		addr:    cfg.Addr,
		store:   cfg.Store,
		planner: cfg.Planner,
		log:     log,
		tpl:     tpl,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/orders", s.handleAddOrder)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/plan", s.handlePlan)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	return s, nil
}

// Handler returns the dashboard's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the dashboard server and blocks until it stops.
func (s *Server) Start() error {
	s.log.WithField("addr", s.addr).Info("Starting dashboard")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the dashboard server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping dashboard")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrders(r.Context())
	if err != nil {
		s.log.Error("Failed to list orders:", err)
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}

	vm := s.buildViewModel(orders, r.URL.Query().Get("err"))

	if err := s.tpl.ExecuteTemplate(w, "index.gohtml", vm); err != nil {
		s.log.Error("Template error:", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
}

func (s *Server) handleAddOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.redirectError(w, r, "invalid form submission")
		return
	}

	quantity, err := strconv.Atoi(r.FormValue("quantity"))
	if err != nil {
		s.redirectError(w, r, "quantity must be a number")
		return
	}

	priority, err := strconv.Atoi(r.FormValue("priority"))
	if err != nil {
		s.redirectError(w, r, "priority must be a number")
		return
	}

	// New orders follow the demo defaults: plain paper on a roll machine,
	// due in a week.
	order := types.Order{
		ID:           r.FormValue("id"),
		PrintMode:    types.PrintMode(r.FormValue("print_mode")),
		PaperType:    types.PaperPlain,
		MachineClass: types.MachineRoll,
		Quantity:     quantity,
		Priority:     priority,
		Deadline:     time.Now().Add(7 * 24 * time.Hour),
	}

	if err := s.store.AddOrder(r.Context(), order); err != nil {
		if errors.Is(err, types.ErrInvalidOrder) {
			s.redirectError(w, r, err.Error())
			return
		}
		s.log.Error("Failed to add order:", err)
		http.Error(w, "failed to add order", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.ResetOrders(r.Context(), SeedOrders(time.Now())); err != nil {
		s.log.Error("Failed to reset orders:", err)
		http.Error(w, "failed to reset orders", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID, err := s.store.SubmitPlanRequest(r.Context(), time.Now())
	if err != nil {
		s.log.Error("Failed to submit plan request:", err)
		http.Error(w, "failed to submit plan request", http.StatusInternalServerError)
		return
	}
	s.log.WithField("request_id", requestID).Info("Queued plan request")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?err="+url.QueryEscape(msg), http.StatusSeeOther)
}

// buildViewModel runs the current order list through the planner and lays
// the result out for the template.
func (s *Server) buildViewModel(orders []types.Order, flashError string) ViewModel {
	batches := s.planner.Build(orders)
	intervals, metrics := s.planner.Derive(batches, time.Now())

	threshold := s.planner.Config().UrgentThreshold
	rows := make([]OrderRow, 0, len(orders))
	for i, order := range orders {
		rows = append(rows, OrderRow{
			Index:  i + 1,
			Order:  order,
			Urgent: order.Urgent(threshold),
		})
	}

	return ViewModel{
		Orders:       rows,
		HasOrders:    len(orders) > 0,
		NextOrderNum: len(orders) + 1,
		Metrics:      metrics,
		Gantt:        ganttRows(intervals),
		Compare:      buildComparison(metrics),
		FlashError:   flashError,
	}
}

func fmtDuration(d time.Duration) string {
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins <= 0 {
		return "0m"
	}
	h := mins / 60
	m := mins % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

func fmtPercent(f float64) string {
	return strconv.FormatFloat(f, 'f', 0, 64)
}
