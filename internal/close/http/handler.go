package closehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/invix-erp/invix/internal/archive"
	"github.com/invix-erp/invix/internal/close"
	"github.com/invix-erp/invix/internal/history"
	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/platform/httpx"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/tenant"
)

const maxCompare = 24

type periodService interface {
	ListPeriods(ctx context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error)
	GetPeriod(ctx context.Context, tenantID, periodID string) (periods.Period, error)
	GetActive(ctx context.Context, tenantID string) (periods.Period, error)
	TransitionPeriod(ctx context.Context, tenantID string, spec periods.Spec) (close.TransitionResult, error)
}

type recordService interface {
	Create(ctx context.Context, tenantID string, payload records.Payload) (records.Record, error)
	Get(ctx context.Context, scope records.Scope, id string) (records.Record, error)
	List(ctx context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error)
	UpdatePayload(ctx context.Context, scope records.Scope, id string, payload records.Payload) (records.Record, error)
	Delete(ctx context.Context, scope records.Scope, id string) error
}

type summarizer interface {
	Summarize(ctx context.Context, tenantID, periodID string) (history.Summary, error)
	Compare(ctx context.Context, tenantID string, periodIDs []string) ([]history.Summary, error)
}

type archiver interface {
	ArchiveYear(ctx context.Context, tenantID string, year int) (archive.Result, error)
	ExportPeriod(ctx context.Context, tenantID, periodID string) (archive.PeriodExport, error)
	PurgePeriod(ctx context.Context, tenantID, periodID string) (int, error)
}

// Config wires the handler. Every service is required.
type Config struct {
	Periods  periodService
	Records  recordService
	History  summarizer
	Archive  archiver
	Resolver tenant.Resolver
	Logger   *slog.Logger
}

// Handler exposes the tenant period API as JSON.
type Handler struct {
	periods   periodService
	records   recordService
	history   summarizer
	archive   archiver
	resolver  tenant.Resolver
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the HTTP handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		periods:   cfg.Periods,
		records:   cfg.Records,
		history:   cfg.History,
		archive:   cfg.Archive,
		resolver:  cfg.Resolver,
		logger:    logger,
		validator: validator.New(),
	}
}

// MountRoutes registers the API below the current router. Every route requires a tenant.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(h.resolver, h.logger))

		r.Get("/periods", h.listPeriods)
		r.Get("/periods/active", h.activePeriod)
		r.Post("/periods/transition", h.transition)
		r.Get("/periods/compare", h.compare)
		r.Get("/periods/{periodID}", h.getPeriod)
		r.Delete("/periods/{periodID}", h.purgePeriod)
		r.Get("/periods/{periodID}/summary", h.summary)
		r.Get("/periods/{periodID}/export", h.exportPeriod)

		r.Post("/records", h.createRecord)
		r.Get("/periods/{periodID}/records", h.listRecords)
		r.Get("/periods/{periodID}/records/{recordID}", h.getRecord)
		r.Put("/periods/{periodID}/records/{recordID}", h.updateRecord)
		r.Delete("/periods/{periodID}/records/{recordID}", h.deleteRecord)

		r.Post("/archives/{year}", h.archiveYear)
	})
}

type transitionRequest struct {
	Name      string `json:"name" validate:"max=120"`
	Kind      string `json:"kind" validate:"required,oneof=daily monthly"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (req transitionRequest) spec() periods.Spec {
	spec := periods.Spec{Name: req.Name, Kind: periods.Kind(req.Kind)}
	// both dates passed the datetime tag already
	spec.StartDate, _ = time.Parse(time.DateOnly, req.StartDate)
	if req.EndDate != "" {
		spec.EndDate, _ = time.Parse(time.DateOnly, req.EndDate)
	}
	return spec
}

type recordRequest struct {
	Kind    string          `json:"kind" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

func (req recordRequest) payload() (records.Payload, error) {
	return records.DecodePayload(records.Kind(req.Kind), req.Payload)
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	var filter periods.ListFilter
	switch status := r.URL.Query().Get("status"); status {
	case "":
	case string(periods.StatusActive), string(periods.StatusClosed):
		filter.Status = periods.Status(status)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("unknown status %q", status))
		return
	}
	out, err := h.periods.ListPeriods(r.Context(), tenantID(r), filter)
	if err != nil {
		h.fail(w, r, "list periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(out))
}

func (h *Handler) activePeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.periods.GetActive(r.Context(), tenantID(r))
	if err != nil {
		h.fail(w, r, "get active period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.periods.GetPeriod(r.Context(), tenantID(r), chi.URLParam(r, "periodID"))
	if err != nil {
		h.fail(w, r, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.periods.TransitionPeriod(r.Context(), tenantID(r), req.spec())
	if err != nil {
		h.fail(w, r, "transition period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || len(ids) > maxCompare {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("ids must list 1 to %d periods", maxCompare))
		return
	}
	out, err := h.history.Compare(r.Context(), tenantID(r), ids)
	if err != nil {
		h.fail(w, r, "compare periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(out))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	out, err := h.history.Summarize(r.Context(), tenantID(r), chi.URLParam(r, "periodID"))
	if err != nil {
		h.fail(w, r, "summarize period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) exportPeriod(w http.ResponseWriter, r *http.Request) {
	out, err := h.archive.ExportPeriod(r.Context(), tenantID(r), chi.URLParam(r, "periodID"))
	if err != nil {
		h.fail(w, r, "export period", err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="period-%s.json"`, out.Period.ID))
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) purgePeriod(w http.ResponseWriter, r *http.Request) {
	removed, err := h.archive.PurgePeriod(r.Context(), tenantID(r), chi.URLParam(r, "periodID"))
	if err != nil {
		h.fail(w, r, "purge period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"records_removed": removed})
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	payload, err := req.payload()
	if err != nil {
		h.fail(w, r, "decode record", err)
		return
	}
	rec, err := h.records.Create(r.Context(), tenantID(r), payload)
	if err != nil {
		h.fail(w, r, "create record", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	filter := records.Filter{Kind: records.Kind(r.URL.Query().Get("kind"))}
	out, err := h.records.List(r.Context(), scope(r), filter)
	if err != nil {
		h.fail(w, r, "list records", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(out))
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), scope(r), chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, "get record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	payload, err := req.payload()
	if err != nil {
		h.fail(w, r, "decode record", err)
		return
	}
	rec, err := h.records.UpdatePayload(r.Context(), scope(r), chi.URLParam(r, "recordID"), payload)
	if err != nil {
		h.fail(w, r, "update record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), scope(r), chi.URLParam(r, "recordID")); err != nil {
		h.fail(w, r, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) archiveYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year must be numeric")
		return
	}
	result, err := h.archive.ArchiveYear(r.Context(), tenantID(r), year)
	if err != nil {
		h.fail(w, r, "archive year", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// decode reads and validates a JSON body. It writes the error response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(msgs, "; "))
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.WarnContext(r.Context(), op,
			slog.String("tenant_id", tenantID(r)),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}

func tenantID(r *http.Request) string {
	id, _ := tenant.IDFromContext(r.Context())
	return id
}

func scope(r *http.Request) records.Scope {
	return records.Scope{TenantID: tenantID(r), PeriodID: chi.URLParam(r, "periodID")}
}
