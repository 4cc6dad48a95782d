package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/qepting91/reddit-link-harvester/internal/domain"
	"github.com/qepting91/reddit-link-harvester/internal/ingest"
	"github.com/qepting91/reddit-link-harvester/internal/scrape"
	"github.com/qepting91/reddit-link-harvester/internal/storage"
)

// Store is the query and correction surface the dashboard serves.
type Store interface {
	Summary(ctx context.Context) (storage.Summary, error)
	CommunityCounts(ctx context.Context) ([]storage.CommunityCount, error)
	List(ctx context.Context, q storage.ListQuery) (storage.ListResult, error)
	Get(ctx context.Context, id int64) (domain.URLRecord, error)
	UpdateURL(ctx context.Context, id int64, newURL string) (domain.URLRecord, error)
	Delete(ctx context.Context, id int64) error
	Export(ctx context.Context, w io.Writer) (int, error)
	Checkpoints(ctx context.Context) ([]domain.Checkpoint, error)
}

// Runner starts harvest runs on request.
type Runner interface {
	RunBackfill(ctx context.Context, communities []string, days int) (scrape.Report, error)
	RunIncremental(ctx context.Context, communities []string) (scrape.Report, error)
}

type ErrorResponse struct {
	Message string `json:"error"`
}

type Server struct {
	store   Store
	runner  Runner
	tracker *StatusTracker
	logger  *slog.Logger
	baseCtx context.Context
	gate    *scrape.Gate
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGate shares the single-run gate with other run triggers.
func WithGate(g *scrape.Gate) Option {
	return func(s *Server) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithBaseContext sets the context background runs inherit, so shutting
// the process down cancels them.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

func New(store Store, runner Runner, tracker *StatusTracker, opts ...Option) *Server {
	s := &Server{
		store:   store,
		runner:  runner,
		tracker: tracker,
		logger:  slog.Default(),
		baseCtx: context.Background(),
		gate:    &scrape.Gate{},
	}
	if s.tracker == nil {
		s.tracker = NewStatusTracker(DefaultLogSize)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleChart)
	r.Route("/api", func(api chi.Router) {
		api.Get("/stats", s.handleStats)
		api.Get("/communities", s.handleCommunities)
		api.Get("/checkpoints", s.handleCheckpoints)
		api.Get("/urls", s.handleListURLs)
		api.Get("/urls/{id}", s.handleGetURL)
		api.Patch("/urls/{id}", s.handleUpdateURL)
		api.Delete("/urls/{id}", s.handleDeleteURL)
		api.Get("/export", s.handleExport)
		api.Get("/scrape/status", s.handleStatus)
		api.Post("/scrape/run", s.handleStartRun)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CommunityCounts(r.Context())
	if err != nil {
		s.fail(w, "Failed to load counts", err)
		return
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Subreddit Share"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Links per Subreddit"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)

	var (
		pieItems []opts.PieData
		barX     []string
		barY     []opts.BarData
	)
	for _, c := range counts {
		pieItems = append(pieItems, opts.PieData{Name: c.Community, Value: c.Count})
		barX = append(barX, c.Community)
		barY = append(barY, opts.BarData{Value: c.Count})
	}
	pie.AddSeries("Links", pieItems)
	bar.SetXAxis(barX).AddSeries("Links", barY)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pie.Render(w); err != nil {
		s.logger.Error("Chart render failed", "err", err)
		return
	}
	if err := bar.Render(w); err != nil {
		s.logger.Error("Chart render failed", "err", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.Summary(r.Context())
	if err != nil {
		s.fail(w, "Failed to load stats", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCommunities(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CommunityCounts(r.Context())
	if err != nil {
		s.fail(w, "Failed to load communities", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps, err := s.store.Checkpoints(r.Context())
	if err != nil {
		s.fail(w, "Failed to load checkpoints", err)
		return
	}
	writeJSON(w, http.StatusOK, cps)
}

func (s *Server) handleListURLs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := storage.ListQuery{
		Page:      intParam(q.Get("page"), 1),
		PerPage:   intParam(q.Get("per_page"), storage.DefaultPerPage),
		Community: strings.TrimSpace(q.Get("community")),
		Search:    strings.TrimSpace(q.Get("search")),
	}
	res, err := s.store.List(r.Context(), query)
	if err != nil {
		s.fail(w, "Failed to list urls", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetURL(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "URL not found"})
	case err != nil:
		s.fail(w, "Failed to get url", err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

type updateURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleUpdateURL(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req updateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "url is required"})
		return
	}

	rec, err := s.store.UpdateURL(r.Context(), id, req.URL)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "URL not found"})
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Message: "That URL is already recorded for this post"})
	case err != nil:
		s.fail(w, "Failed to update url", err)
	default:
		s.logger.Info("URL corrected", "id", id, "url", rec.URL)
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleDeleteURL(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	err := s.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "URL not found"})
	case err != nil:
		s.fail(w, "Failed to delete url", err)
	default:
		s.logger.Info("URL deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+storage.DefaultExportFile+`"`)
	n, err := s.store.Export(r.Context(), w)
	if err != nil {
		// Headers are already out; the truncated body is all we can do.
		s.logger.Error("Export failed", "rows", n, "err", err)
		return
	}
	s.logger.Info("Export served", "rows", n)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

type runRequest struct {
	Communities []string `json:"communities"`
	Mode        string   `json:"mode"`
	Days        int      `json:"days"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid request body: " + err.Error()})
		return
	}

	communities, err := ingest.NormalizeCommunities(req.Communities)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	if len(communities) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "at least one community is required"})
		return
	}

	var run func(ctx context.Context) (scrape.Report, error)
	switch scrape.Mode(req.Mode) {
	case scrape.ModeBackfill:
		if req.Days <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "days must be positive for a backfill"})
			return
		}
		run = func(ctx context.Context) (scrape.Report, error) {
			return s.runner.RunBackfill(ctx, communities, req.Days)
		}
	case scrape.ModeIncremental, "":
		run = func(ctx context.Context) (scrape.Report, error) {
			return s.runner.RunIncremental(ctx, communities)
		}
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "mode must be backfill or incremental"})
		return
	}

	if !s.gate.Enter() {
		writeJSON(w, http.StatusConflict, ErrorResponse{Message: "A scrape is already running"})
		return
	}

	go func() {
		defer s.gate.Leave()
		rep, err := run(s.baseCtx)
		if err != nil {
			s.logger.Error("Background run failed", "err", err)
			if rep.RunID == "" {
				s.tracker.Fail(time.Now(), err)
			}
			return
		}
		s.logger.Info("Background run finished", "run_id", rep.RunID, "failed", len(rep.Failed()))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "communities": communities})
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "err", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid id: must be a positive integer"})
		return 0, false
	}
	return id, true
}
