package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"medcanna/m/internal/products"
)

type productRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Supplier     string          `json:"supplier"`
	Price        decimal.Decimal `json:"price"`
	MinimumStock int64           `json:"minimum_stock"`
	InitialStock int64           `json:"initial_stock"`
	Active       *bool           `json:"active,omitempty"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	uid, _ := userIDFromContext(r)
	p, err := h.products.Create(r.Context(), products.CreateRequest{
		Name:         req.Name,
		Category:     req.Category,
		Supplier:     req.Supplier,
		Price:        req.Price,
		MinimumStock: req.MinimumStock,
		InitialStock: req.InitialStock,
		CreatedBy:    &uid,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f := products.Filter{
		Query:      strings.TrimSpace(r.URL.Query().Get("query")),
		Category:   strings.TrimSpace(r.URL.Query().Get("category")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	list, err := h.products.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid product id")
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid product id")
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if req.InitialStock != 0 {
		respondError(w, http.StatusBadRequest, "invalid_input", "stock changes go through /stock/movements")
		return
	}
	p, err := h.products.Update(r.Context(), id, products.UpdateRequest{
		Name:         req.Name,
		Category:     req.Category,
		Supplier:     req.Supplier,
		Price:        req.Price,
		MinimumStock: req.MinimumStock,
		Active:       req.Active,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "invalid product id")
		return
	}
	if err := h.products.Deactivate(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
