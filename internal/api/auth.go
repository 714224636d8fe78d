package api

import (
	"net/http"

	"medcanna/m/domain"
	"medcanna/m/internal/accounts"
	"medcanna/m/internal/gate"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	user, err := h.accounts.Register(r.Context(), accounts.RegisterRequest{Name: req.Name, Email: req.Email, Password: req.Password, Role: req.Role})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	token, err := h.generateToken(user.ID, user.Role)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	token, err := h.generateToken(user.ID, user.Role)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	uid, _ := userIDFromContext(r)
	if err := h.accounts.ResetPassword(r.Context(), uid, payload.NewPassword); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

type meResponse struct {
	User     *domain.User  `json:"user"`
	Decision gate.Decision `json:"purchase"`
}

// me returns the caller's account and current purchase tier.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r)
	user, err := h.accounts.Get(r.Context(), uid)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meResponse{User: user, Decision: gate.Evaluate(gate.InputFor(user))})
}
