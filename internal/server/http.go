package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/common"
	"github.com/joseph-ayodele/faxintake/internal/entity"
	"github.com/joseph-ayodele/faxintake/internal/export"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

const (
	headerRequestID = "X-Request-ID"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxListLimit    = 500
)

// Handler serves the status API over the record store.
type Handler struct {
	repo     repository.AuthorizationRepository
	export   *export.Service
	checkers []ReadinessChecker
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func NewHandler(repo repository.AuthorizationRepository, exp *export.Service, gatherer prometheus.Gatherer, logger *zap.Logger, checkers ...ReadinessChecker) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{repo: repo, export: exp, checkers: checkers, gatherer: gatherer, logger: logger}
}

// Router mounts every route. middlewares run outermost first, after request id assignment.
func (h *Handler) Router(middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestID)
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health/live", h.healthLive)
	r.Get("/health/ready", h.healthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/authorizations", func(r chi.Router) {
		r.Get("/", h.listAuthorizations)
		r.Get("/export.xlsx", h.exportAuthorizations)
		r.Get("/{id}", h.getAuthorization)
	})
	return r
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := common.WithRequestID(r.Context(), id)
		ctx = common.WithLogger(ctx, h.logger.With(zap.String("request_id", id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

func (h *Handler) healthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) healthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]checkResult, len(h.checkers)),
	}
	code := http.StatusOK
	for _, c := range h.checkers {
		if err := c.CheckReady(r.Context()); err != nil {
			resp.Checks[c.Name()] = checkResult{Status: "fail", Message: err.Error()}
			resp.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name()] = checkResult{Status: "ok"}
	}
	writeJSON(w, code, resp)
}

type listResponse struct {
	Items  any `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (h *Handler) listAuthorizations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*entity.AuthorizationRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: recs, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *Handler) getAuthorization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := common.ValidateAndReturnError(common.NewValidator().Field("id", id, common.UUID)); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) exportAuthorizations(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatus(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.export.AuthorizationsXLSX(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="authorizations.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func parseStatus(r *http.Request) (constants.AuthorizationStatus, error) {
	s := constants.AuthorizationStatus(r.URL.Query().Get("status"))
	if s != "" && !s.Valid() {
		return "", common.NewAppError("INVALID_ARGUMENT", "status must be processing, completed or failed", common.ErrInvalidInput)
	}
	return s, nil
}

func parseListFilter(r *http.Request) (repository.ListFilter, error) {
	status, err := parseStatus(r)
	if err != nil {
		return repository.ListFilter{}, err
	}
	f := repository.ListFilter{Status: status, Limit: repository.DefaultListLimit}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return f, common.NewAppError("INVALID_ARGUMENT", "limit must be between 1 and 500", common.ErrInvalidInput)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, common.NewAppError("INVALID_ARGUMENT", "offset must be a non-negative integer", common.ErrInvalidInput)
		}
		f.Offset = n
	}
	return f, nil
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, common.ErrNotFound):
		code, status = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, common.ErrInvalidInput):
		code, status = http.StatusBadRequest, "INVALID_ARGUMENT"
	}

	msg := err.Error()
	var ae *common.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	logger := common.LoggerFromContext(r.Context(), h.logger)
	if code == http.StatusInternalServerError {
		logger.Error("http.request.failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	} else {
		logger.Debug("http.request.rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: status, Message: msg, RequestID: common.RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
