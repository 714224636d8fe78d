package api

import (
	"net/http"
	"strings"

	"medcanna/m/internal/products"
)

func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	var uid *int64
	if id, ok := userIDFromContext(r); ok {
		uid = &id
	}
	f := products.Filter{
		Query:    strings.TrimSpace(r.URL.Query().Get("query")),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
	}
	view, err := h.catalog.Query(r.Context(), uid, f)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
