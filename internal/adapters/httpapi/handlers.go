package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

// maxPageSize caps listing page sizes regardless of the requested limit.
const maxPageSize = 100

// Handler exposes the order service over HTTP.
type Handler struct {
	service *orders.OrderService
	hub     HubRegistry
	log     *slog.Logger
}

// NewHandler constructs a Handler. hub and log may be nil; with a nil hub the
// WebSocket endpoint responds 503.
func NewHandler(service *orders.OrderService, hub HubRegistry, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		service: service,
		hub:     hub,
		log:     log,
	}
}

// CreateOrder runs the creation saga. A payment session failure after the
// order is durable still returns 201 with a warning, since the order exists
// and stays payable.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	lines := make([]orders.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, orders.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	result, err := h.service.CreateOrder(r.Context(), req.RequesterID, lines)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := CreateOrderResponse{Order: mapOrderToResponse(result.Order)}
	if result.SessionErr != nil {
		resp.Warning = "payment session could not be opened; the order is pending and payable"
	} else {
		resp.Payment = &PaymentSessionResponse{
			SessionID:   result.Session.ID,
			RedirectURL: result.Session.RedirectURL,
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ChangeStatus applies a guarded status transition.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	next, ok := orders.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+strconv.Quote(req.Status))
		return
	}

	order, err := h.service.ChangeOrderStatus(r.Context(), orderID, next, req.Metadata)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// GetOrder loads one order with catalog-enriched item names.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	order, err := h.service.FindOne(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// ListOrders is the paginated listing, optionally filtered by status.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_page", err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var filter orders.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := orders.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+strconv.Quote(raw))
			return
		}
		filter.Status = &status
	}

	result, err := h.service.FindAll(r.Context(), filter, page, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := OrderPageResponse{
		Data: make([]OrderResponse, 0, len(result.Data)),
		Meta: PageMetaDTO{
			Total:    result.Meta.Total,
			Page:     result.Meta.Page,
			LastPage: result.Meta.LastPage,
		},
	}
	for _, order := range result.Data {
		resp.Data = append(resp.Data, mapOrderToResponse(order))
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *orders.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, "validation_error", vErr.Error())
		return
	}

	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, orders.ErrProductUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "product_unavailable", err.Error())
	case errors.Is(err, orders.ErrProductValidation):
		writeError(w, http.StatusUnprocessableEntity, "product_validation_failed", err.Error())
	case errors.Is(err, orders.ErrCatalogUnavailable):
		writeError(w, http.StatusBadGateway, "catalog_unavailable", err.Error())
	case errors.Is(err, orders.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, orders.ErrOrderPersistence):
		writeError(w, http.StatusInternalServerError, "order_persistence_failed", err.Error())
	default:
		h.log.ErrorContext(r.Context(), "unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
