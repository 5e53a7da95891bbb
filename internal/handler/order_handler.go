package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/starlane/internal/auth"
	"github.com/freeeve/starlane/internal/service"
)

// earlyResolveTimeout bounds an early resolution started from a request.
const earlyResolveTimeout = 30 * time.Second

// EarlyResolver resolves a phase once every faction is ready.
type EarlyResolver interface {
	ResolvePhaseEarly(ctx context.Context, gameID string) error
}

// OrderHandler handles order submission and ready endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
	resolver EarlyResolver
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService, resolver EarlyResolver) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, resolver: resolver}
}

type submitOrdersRequest struct {
	Orders []string `json:"orders"`
}

// SubmitOrders handles POST /api/v1/games/{id}/orders. Each line is accepted
// or rejected on its own; the request fails only when nothing was accepted.
func (h *OrderHandler) SubmitOrders(w http.ResponseWriter, r *http.Request) {
	var req submitOrdersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inputs := make([]service.OrderInput, len(req.Orders))
	for i, text := range req.Orders {
		inputs[i] = service.OrderInput{Text: text}
	}

	res, err := h.orderSvc.SubmitOrders(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()), inputs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if len(res.Accepted) == 0 && len(res.Rejected) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// ListOrders handles GET /api/v1/games/{id}/orders and returns the caller's
// stored orders for the open phase.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderSvc.Orders(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// MarkReady handles POST /api/v1/games/{id}/orders/ready
func (h *OrderHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	ready, total, err := h.orderSvc.MarkReady(r.Context(), gameID, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	allReady := total > 0 && ready >= total
	if allReady {
		// The request context ends with the handler.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), earlyResolveTimeout)
			defer cancel()
			if err := h.resolver.ResolvePhaseEarly(ctx, gameID); err != nil {
				log.Error().Err(err).Str("gameId", gameID).Msg("Early resolution failed")
			}
		}()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ready_count":    ready,
		"total_factions": total,
		"all_ready":      allReady,
	})
}

// UnmarkReady handles DELETE /api/v1/games/{id}/orders/ready
func (h *OrderHandler) UnmarkReady(w http.ResponseWriter, r *http.Request) {
	if err := h.orderSvc.UnmarkReady(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "not_ready"})
}
