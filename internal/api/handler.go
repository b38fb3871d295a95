package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"pharmacare/m/domain"
	"pharmacare/m/internal/assistant"
	"pharmacare/m/internal/identity"
	"pharmacare/m/internal/pharmacy"
	"pharmacare/m/internal/reports"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "userID"
	ctxUsername ctxKey = "username"
	ctxRole     ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	pharmacy  *pharmacy.Service
	identity  *identity.Service
	assistant *assistant.Client
	secret    string
	log       *zap.Logger
}

// New constructs a Handler.
func New(ph *pharmacy.Service, id *identity.Service, ai *assistant.Client, secret string, log *zap.Logger) *Handler {
	return &Handler{pharmacy: ph, identity: id, assistant: ai, secret: secret, log: log}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Change "*" to a list of allowed domains (e.g., ["http://localhost:3000"])
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/medicines", func(r chi.Router) {
			r.Get("/", h.listMedicines)
			r.Post("/", h.addMedicine)
			r.Put("/{id}", h.updateMedicine)
			r.Post("/{id}/batches/{batchID}/adjust", h.adjustStock)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Get("/", h.listSales)
			r.Post("/", h.checkout)
		})

		pr.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.listSuppliers)
			r.Post("/", h.addSupplier)
		})

		pr.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", h.listPurchaseOrders)
			r.Post("/", h.createPurchaseOrder)
			r.Post("/{id}/complete", h.completePurchaseOrder)
			r.Post("/{id}/cancel", h.cancelPurchaseOrder)
		})

		pr.Route("/settings", func(r chi.Router) {
			r.Get("/", h.getSettings)
			r.Put("/", h.updateSettings)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/low-stock", h.lowStockReport)
			r.Get("/expiry", h.expiryReport)
			r.Get("/valuation", h.valuationReport)
			r.Get("/sales", h.salesReport)
		})

		pr.Route("/assistant", func(r chi.Router) {
			r.Post("/drug-info", h.drugInfo)
			r.Post("/interactions", h.drugInteractions)
			r.Post("/query", h.inventoryQuery)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

// Authentication helpers

type authClaims struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(user domain.User) (string, error) {
	claims := authClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || !claims.Role.IsValid() {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func roleFromContext(r *http.Request) domain.Role {
	if val := r.Context().Value(ctxRole); val != nil {
		if role, ok := val.(domain.Role); ok {
			return role
		}
	}
	return ""
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...domain.Role) bool {
	current := roleFromContext(r)
	if current == "" {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	for _, role := range allowed {
		if current == role {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

// Auth handlers

type signupRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.identity.Signup(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	token, err := h.generateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	user.Password = ""
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	token, err := h.generateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Medicine handlers

func (h *Handler) listMedicines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.pharmacy.Medicines())
}

func (h *Handler) addMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.Medicine
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	med, err := h.pharmacy.AddMedicine(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, med)
}

func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.Medicine
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = chi.URLParam(r, "id")
	med, err := h.pharmacy.UpdateMedicine(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	med, err := h.pharmacy.AdjustStock(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "batchID"), req.Delta)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

// Sales handlers

type checkoutRequest struct {
	Items        []domain.CartItem `json:"items"`
	CustomerName string            `json:"customerName"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sale, err := h.pharmacy.Checkout(r.Context(), req.Items, req.CustomerName, roleFromContext(r))
	if err != nil {
		if sale.ID != "" {
			// The sale is durable; the follow-up stock write failed and
			// is surfaced rather than rolled back.
			h.log.Error("post-sale stock update failed", zap.String("sale_id", sale.ID), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]any{
				"error": err.Error(),
				"sale":  sale,
			})
			return
		}
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.pharmacy.Sales())
}

// Supplier handlers

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.pharmacy.Suppliers())
}

func (h *Handler) addSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.Supplier
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sup, err := h.pharmacy.AddSupplier(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sup)
}

// Purchase-order handlers

type createOrderRequest struct {
	SupplierID string                     `json:"supplierId"`
	Items      []domain.PurchaseOrderItem `json:"items"`
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.pharmacy.PurchaseOrders())
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := h.pharmacy.CreatePurchaseOrder(r.Context(), req.SupplierID, req.Items)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *Handler) completePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.pharmacy.CompletePurchaseOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) cancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.pharmacy.CancelPurchaseOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Settings handlers

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.pharmacy.Settings())
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var req domain.Settings
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.pharmacy.UpdateSettings(r.Context(), req); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// Report handlers

func (h *Handler) lowStockReport(w http.ResponseWriter, r *http.Request) {
	low := reports.LowStock(h.pharmacy.Medicines())
	if low == nil {
		low = []domain.Medicine{}
	}
	respondJSON(w, http.StatusOK, low)
}

func (h *Handler) expiryReport(w http.ResponseWriter, r *http.Request) {
	meds := h.pharmacy.Medicines()
	now := time.Now()
	var rows []reports.BatchRow
	switch r.URL.Query().Get("filter") {
	case "expired":
		rows = reports.Expired(meds, now)
	default:
		rows = reports.ExpiringSoon(meds, now)
	}
	if rows == nil {
		rows = []reports.BatchRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) valuationReport(w http.ResponseWriter, r *http.Request) {
	filter := reports.ValuationFilter{
		Warehouse: domain.Warehouse(r.URL.Query().Get("warehouse")),
		Search:    r.URL.Query().Get("search"),
	}
	total := reports.StockValuation(h.pharmacy.Medicines(), filter)
	respondJSON(w, http.StatusOK, map[string]float64{"valuation": total})
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	sales := h.pharmacy.Sales()
	respondJSON(w, http.StatusOK, map[string]any{
		"revenue":     reports.TotalSales(sales),
		"sales_count": len(sales),
	})
}

// Assistant handlers

func (h *Handler) drugInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DrugName string `json:"drugName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": h.assistant.DrugInformation(r.Context(), req.DrugName)})
}

func (h *Handler) drugInteractions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Drugs []string `json:"drugs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": h.assistant.DrugInteractions(r.Context(), req.Drugs)})
}

func (h *Handler) inventoryQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := h.assistant.QueryInventory(r.Context(), req.Query, h.pharmacy.Medicines(), h.pharmacy.Sales())
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Helpers

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicateKey),
		errors.Is(err, domain.ErrUsernameTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error("internal error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
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

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
