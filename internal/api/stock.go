package api

import (
	"net/http"
	"strconv"
	"time"

	"medcanna/m/domain"
	"medcanna/m/internal/ledger"
)

type movementRequest struct {
	ProductID    int64      `json:"product_id"`
	Type         string     `json:"type"`
	Quantity     int64      `json:"quantity"`
	Reason       string     `json:"reason"`
	Reference    string     `json:"reference"`
	Notes        string     `json:"notes"`
	MovementDate *time.Time `json:"movement_date"`
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	uid, _ := userIDFromContext(r)
	mr := ledger.MovementRequest{
		ProductID: req.ProductID,
		Type:      domain.MovementType(req.Type),
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		Reference: req.Reference,
		Notes:     req.Notes,
		CreatedBy: &uid,
	}
	if req.MovementDate != nil {
		mr.MovementDate = req.MovementDate.UTC()
	}
	res, err := h.ledger.RecordMovement(r.Context(), mr)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

type adjustmentRequest struct {
	ProductID   int64  `json:"product_id"`
	NewQuantity int64  `json:"new_quantity"`
	Reason      string `json:"reason"`
	Notes       string `json:"notes"`
}

func (h *Handler) recordAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	uid, _ := userIDFromContext(r)
	res, err := h.ledger.RecordAdjustment(r.Context(), ledger.AdjustmentRequest{
		ProductID:   req.ProductID,
		NewQuantity: req.NewQuantity,
		Reason:      req.Reason,
		Notes:       req.Notes,
		CreatedBy:   &uid,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	var productID int64
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_input", "invalid product_id")
			return
		}
		productID = id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.ledger.Movements(r.Context(), productID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, movements)
}

func (h *Handler) stockSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Summary(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.LowStock(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) auditStock(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.ledger.Audit(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"consistent": len(discrepancies) == 0, "discrepancies": discrepancies})
}
