package api

import (
	"net/http"

	"medcanna/m/domain"
	"medcanna/m/internal/orders"
)

type orderRequest struct {
	Items []orders.ItemRequest `json:"items"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	// The gate reads the stored flags, not the token, so an approval made
	// after login takes effect immediately.
	uid, _ := userIDFromContext(r)
	user, err := h.accounts.Get(r.Context(), uid)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	order, err := h.orders.Place(r.Context(), user, req.Items)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r)
	list, err := h.orders.ListForUser(r.Context(), uid)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Reports

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	rev, err := h.orders.RevenueSince(r.Context(), orders.StartOfDay(h.now()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rev)
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	rev, err := h.orders.RevenueSince(r.Context(), orders.StartOfMonth(h.now()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rev)
}

type dashboardResponse struct {
	Daily   orders.Revenue      `json:"daily"`
	Monthly orders.Revenue      `json:"monthly"`
	Stock   domain.StockSummary `json:"stock"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	daily, err := h.orders.RevenueSince(r.Context(), orders.StartOfDay(now))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	monthly, err := h.orders.RevenueSince(r.Context(), orders.StartOfMonth(now))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	stock, err := h.ledger.Summary(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dashboardResponse{Daily: daily, Monthly: monthly, Stock: stock})
}
