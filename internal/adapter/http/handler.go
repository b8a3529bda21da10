package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/internal/metrics"
	"ratewatch/internal/service"
	"ratewatch/pkg/logger"
	"ratewatch/pkg/utils"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type Handler struct {
	store     ports.HistoryStore
	refresher ports.Refresher
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewHandler(store ports.HistoryStore, refresher ports.Refresher, log *logger.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		store:     store,
		refresher: refresher,
		log:       log,
		metrics:   metrics,
	}
}

func pairFromQuery(r *http.Request) (model.CurrencyPair, error) {
	return model.NewPair(r.URL.Query().Get("base"), r.URL.Query().Get("quote"))
}

func (h *Handler) GetLatestRateHandler(w http.ResponseWriter, r *http.Request) {
	pair, err := pairFromQuery(r)
	if err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, err := h.store.Latest(r.Context(), pair)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, sample)
}

func (h *Handler) GetRangeHandler(w http.ResponseWriter, r *http.Request) {
	pair, err := pairFromQuery(r)
	if err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	from := time.Unix(0, 0).UTC()
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		from, err = utils.ParseTime(fromStr)
		if err != nil {
			h.sendErrorResponse(w, http.StatusBadRequest, "invalid from parameter: "+err.Error())
			return
		}
	}

	to := time.Now().UTC()
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		to, err = utils.ParseTime(toStr)
		if err != nil {
			h.sendErrorResponse(w, http.StatusBadRequest, "invalid to parameter: "+err.Error())
			return
		}
	}

	samples, err := h.store.Range(r.Context(), pair, from, to)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, samples)
}

func (h *Handler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, http.StatusMethodNotAllowed, "use POST to trigger a refresh")
		return
	}

	pair, err := pairFromQuery(r)
	if err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, err := h.refresher.TriggerOnce(r.Context(), pair)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, sample)
}

func (h *Handler) sendSuccessResponse(w http.ResponseWriter, data interface{}) {
	response := Response{
		Success: true,
		Data:    data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := Response{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode error response", "error", err)
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorMessage := "internal server error"

	switch {
	case errors.Is(err, ports.ErrNotFound):
		statusCode = http.StatusNotFound
		errorMessage = "no data yet for this pair"
	case errors.Is(err, ports.ErrNonMonotonic):
		statusCode = http.StatusConflict
		errorMessage = "fetched sample is older than the stored series"
	case errors.Is(err, service.ErrUnsupportedPair):
		statusCode = http.StatusBadRequest
		errorMessage = err.Error()
	case errors.Is(err, service.ErrValidation):
		statusCode = http.StatusBadGateway
		errorMessage = err.Error()
	case errors.Is(err, service.ErrUnavailable):
		statusCode = http.StatusServiceUnavailable
		errorMessage = err.Error()
	default:
		h.log.Error("Unhandled service error", "error", err)
	}

	h.sendErrorResponse(w, statusCode, errorMessage)
}
