package backend

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/models"
)

// Handler serves a Store over the REST routes services.ServiceClient calls.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger.With("component", "backend")}
}

// Routes registers every route on mux. Callers wrap mux with
// auth.Middleware.Identify so handlers can read the caller.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /categories", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, h.store.ListCategories())
	})
	mux.HandleFunc("GET /categories/{id}/products", h.withID(func(w http.ResponseWriter, r *http.Request, id models.ID) {
		h.writeJSON(w, http.StatusOK, h.store.ListProductsByCategory(id))
	}))
	mux.HandleFunc("GET /categories/{id}/profiles", h.withID(func(w http.ResponseWriter, r *http.Request, id models.ID) {
		h.writeJSON(w, http.StatusOK, h.store.ListProfilesByCategory(id))
	}))

	mux.HandleFunc("GET /products/{id}", h.withID(func(w http.ResponseWriter, r *http.Request, id models.ID) {
		h.respond(w, http.StatusOK)(h.store.GetProduct(id))
	}))
	mux.HandleFunc("PUT /products", func(w http.ResponseWriter, r *http.Request) {
		var in models.ProductUpsert
		if !h.decode(w, r, &in) {
			return
		}
		h.respond(w, http.StatusOK)(h.store.UpsertProduct(principal(r), in))
	})
	mux.HandleFunc("GET /entrepreneurs/{id}/products", h.withID(func(w http.ResponseWriter, r *http.Request, id models.ID) {
		h.writeJSON(w, http.StatusOK, h.store.ListProductsByEntrepreneur(id))
	}))

	mux.HandleFunc("GET /profiles/{id}", h.withID(func(w http.ResponseWriter, r *http.Request, id models.ID) {
		h.respond(w, http.StatusOK)(h.store.GetProfile(id))
	}))
	mux.HandleFunc("PUT /me/entrepreneur-profile", func(w http.ResponseWriter, r *http.Request) {
		var in models.ProfileUpsert
		if !h.decode(w, r, &in) {
			return
		}
		h.respond(w, http.StatusOK)(h.store.UpsertEntrepreneurProfile(principal(r), in))
	})

	mux.HandleFunc("GET /me/profile", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, h.store.GetCallerProfile(principal(r)))
	})
	mux.HandleFunc("PUT /me/profile", func(w http.ResponseWriter, r *http.Request) {
		var in models.UserProfile
		if !h.decode(w, r, &in) {
			return
		}
		if err := h.store.SaveCallerProfile(principal(r), in); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /users/{principal}/profile", func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, http.StatusOK)(h.store.GetUserProfile(principal(r), r.PathValue("principal")))
	})

	mux.HandleFunc("POST /inquiries", func(w http.ResponseWriter, r *http.Request) {
		var in models.InquiryDraft
		if !h.decode(w, r, &in) {
			return
		}
		h.respond(w, http.StatusCreated)(h.store.CreateInquiry(in))
	})
	mux.HandleFunc("GET /entrepreneurs/{id}/inquiries", h.withID(func(w http.ResponseWriter, r *http.Request, id models.ID) {
		h.respond(w, http.StatusOK)(h.store.ListInquiriesByEntrepreneur(principal(r), id))
	}))

	mux.HandleFunc("POST /admin/roles", func(w http.ResponseWriter, r *http.Request) {
		var in models.RoleAssignment
		if !h.decode(w, r, &in) {
			return
		}
		if err := h.store.AssignRole(principal(r), in); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /me/role", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]models.UserRole{"role": h.store.CallerRole(principal(r))})
	})
	mux.HandleFunc("GET /me/admin", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]bool{"admin": h.store.IsCallerAdmin(principal(r))})
	})
	mux.HandleFunc("POST /admin/initialize", func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.InitializeMarketplace(principal(r)); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func principal(r *http.Request) string {
	return auth.FromContext(r.Context()).Principal
}

func (h *Handler) withID(next func(http.ResponseWriter, *http.Request, models.ID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := models.ParseID(r.PathValue("id"))
		if err != nil {
			h.writeError(w, apperr.Validation("id", err.Error()))
			return
		}
		next(w, r, id)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, apperr.Validation("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// respond adapts a (value, error) return into a response.
func (h *Handler) respond(w http.ResponseWriter, status int) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, status, v)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("JSON encode error", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code, msg := http.StatusInternalServerError, "INTERNAL", "internal error"
	if appErr, ok := apperr.As(err); ok {
		status, code, msg = appErr.HTTPCode(), appErr.ErrorCode(), appErr.Message()
	} else {
		h.logger.Error("Unhandled error", "error", err)
	}

	h.writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
