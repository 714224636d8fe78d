package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"

	"medcanna/m/domain"
	"medcanna/m/internal/accounts"
	"medcanna/m/internal/catalog"
	"medcanna/m/internal/documents"
	"medcanna/m/internal/ledger"
	"medcanna/m/internal/orders"
	"medcanna/m/internal/products"
	"medcanna/m/internal/storage"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

const maxUploadBytes = 10 << 20

// Options carries the services the HTTP API is built on.
type Options struct {
	Secret         string
	TokenTTL       time.Duration
	AllowedOrigins []string
	Accounts       *accounts.Service
	Catalog        *catalog.Service
	Products       *products.Service
	Documents      *documents.Service
	Ledger         *ledger.Ledger
	Orders         *orders.Service
	Files          storage.Store
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	secret    string
	tokenTTL  time.Duration
	origins   []string
	accounts  *accounts.Service
	catalog   *catalog.Service
	products  *products.Service
	documents *documents.Service
	ledger    *ledger.Ledger
	orders    *orders.Service
	files     storage.Store
	now       func() time.Time
}

// New constructs a Handler.
func New(opts Options) *Handler {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		secret:    opts.Secret,
		tokenTTL:  ttl,
		origins:   origins,
		accounts:  opts.Accounts,
		catalog:   opts.Catalog,
		products:  opts.Products,
		documents: opts.Documents,
		ledger:    opts.Ledger,
		orders:    opts.Orders,
		files:     opts.Files,
		now:       time.Now,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: !allowsAnyOrigin(h.origins),
	}))

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.With(h.optionalAuth).Get("/catalog", h.getCatalog)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Get("/me", h.me)

		pr.Route("/documents", func(r chi.Router) {
			r.Post("/", h.uploadDocument)
			r.Get("/", h.listMyDocuments)
		})

		pr.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/", h.listMyOrders)
		})

		pr.Group(func(admin chi.Router) {
			admin.Use(h.adminOnly)

			admin.Get("/files/{key}", h.serveFile)

			admin.Route("/admin/documents", func(r chi.Router) {
				r.Get("/", h.listDocuments)
				r.Post("/{id}/approve", h.approveDocument)
				r.Post("/{id}/reject", h.rejectDocument)
			})

			admin.Route("/products", func(r chi.Router) {
				r.Post("/", h.createProduct)
				r.Get("/", h.listProducts)
				r.Get("/{id}", h.getProduct)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deactivateProduct)
			})

			admin.Route("/stock", func(r chi.Router) {
				r.Post("/movements", h.recordMovement)
				r.Get("/movements", h.listMovements)
				r.Post("/adjustments", h.recordAdjustment)
				r.Get("/summary", h.stockSummary)
				r.Get("/low", h.lowStock)
				r.Get("/audit", h.auditStock)
			})

			admin.Route("/reports", func(r chi.Router) {
				r.Get("/sales/daily", h.dailySales)
				r.Get("/sales/monthly", h.monthlySales)
				r.Get("/dashboard", h.dashboard)
			})
		})
	})

	return r
}

// allowsAnyOrigin reports a wildcard CORS policy. Credentials are only
// allowed for an explicit origin list.
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role domain.Role) (string, error) {
	now := h.now()
	claims := authClaims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

// parseBearer returns the claims of a valid bearer token. ok is false when
// no Authorization header was sent at all.
func (h *Handler) parseBearer(r *http.Request) (claims *authClaims, ok bool, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, true, errors.New("missing bearer token")
	}
	tokenString := strings.TrimSpace(header[len("Bearer "):])
	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.secret), nil
	})
	if err != nil || !token.Valid {
		return nil, true, errors.New("invalid token")
	}
	claims, valid := token.Claims.(*authClaims)
	if !valid {
		return nil, true, errors.New("invalid token claims")
	}
	return claims, true, nil
}

func withClaims(r *http.Request, claims *authClaims) *http.Request {
	ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
	ctx = context.WithValue(ctx, ctxRole, domain.Role(claims.Role))
	return r.WithContext(ctx)
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, sent, err := h.parseBearer(r)
		if !sent {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		next.ServeHTTP(w, withClaims(r, claims))
	})
}

// optionalAuth attaches the session when a valid token is sent. Missing or
// invalid tokens fall through as anonymous callers.
func (h *Handler) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, sent, err := h.parseBearer(r)
		if sent && err == nil {
			r = withClaims(r, claims)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.requireRole(w, r, domain.RoleAdmin) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...domain.Role) bool {
	current, ok := r.Context().Value(ctxRole).(domain.Role)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing role")
		return false
	}
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
	return false
}

func userIDFromContext(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(ctxUserID).(int64)
	return id, ok
}

// Helpers

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, map[string]string{"error": message, "kind": kind})
}

// respondServiceError maps service errors onto status codes. Unexpected
// errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	var status int
	switch kind {
	case "invalid_input", "invalid_quantity", "missing_reason":
		status = http.StatusBadRequest
	case "unauthenticated":
		status = http.StatusUnauthorized
	case "purchase_locked":
		status = http.StatusForbidden
	case "not_found":
		status = http.StatusNotFound
	case "insufficient_stock", "concurrent_modification", "conflict":
		status = http.StatusConflict
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, kind, "internal error")
		return
	}
	respondError(w, status, kind, err.Error())
}
