package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/marketplace"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/query"
	"marketplace-bff/internal/session"
)

// LoginStatusHeader lets the client report identity provider progress.
const LoginStatusHeader = "X-Login-Status"

type Handler struct {
	market   *marketplace.Client
	sessions *session.Resolver
	limiter  RateLimiter
	logger   *slog.Logger
}

func NewHandler(market *marketplace.Client, sessions *session.Resolver, limiter RateLimiter, logger *slog.Logger) *Handler {
	return &Handler{
		market:   market,
		sessions: sessions,
		limiter:  limiter,
		logger:   logger.With("component", "api"),
	}
}

// Routes registers the gateway API on mux. The caller wraps mux with
// auth.Middleware.Identify.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session", h.GetSession)
	mux.HandleFunc("GET /api/home", h.GetHome)
	mux.HandleFunc("GET /api/categories/{categoryId}", h.GetCategory)
	mux.HandleFunc("GET /api/products/{productId}", h.GetProduct)
	mux.HandleFunc("GET /api/sellers/{sellerId}", h.GetSeller)
	mux.Handle("GET /api/dashboard", auth.RequireAuth(http.HandlerFunc(h.GetDashboard)))

	mux.Handle("GET /api/dashboard/inquiries/events", auth.RequireAuth(http.HandlerFunc(h.StreamInquiries)))

	mux.Handle("PUT /api/me/profile", auth.RequireAuth(http.HandlerFunc(h.SaveProfile)))
	mux.Handle("PUT /api/me/seller-profile", auth.RequireAuth(http.HandlerFunc(h.SaveSellerProfile)))
	mux.Handle("POST /api/products", auth.RequireAuth(http.HandlerFunc(h.CreateProduct)))
	mux.Handle("PUT /api/products/{productId}", auth.RequireAuth(http.HandlerFunc(h.UpdateProduct)))
	mux.HandleFunc("POST /api/products/{productId}/inquiries", h.CreateInquiry)

	mux.HandleFunc("GET /api/me/role", h.GetRole)
	mux.Handle("GET /api/admin/status", auth.RequireAuth(http.HandlerFunc(h.GetAdminStatus)))
	mux.Handle("POST /api/admin/roles", auth.RequireAuth(http.HandlerFunc(h.AssignRole)))
	mux.Handle("POST /api/admin/initialize", auth.RequireAuth(http.HandlerFunc(h.Initialize)))
	mux.Handle("GET /api/users/{principal}/profile", auth.RequireAuth(http.HandlerFunc(h.GetUserProfile)))
}

func (h *Handler) identity(r *http.Request) session.Identity {
	caller := auth.FromContext(r.Context())
	id := session.Identity{Principal: caller.Principal}

	if st, ok := session.ParseLoginStatus(r.Header.Get(LoginStatusHeader)); ok {
		id.Status = st
	} else if id.Authenticated() {
		id.Status = session.LoginSuccess
	} else {
		id.Status = session.LoginIdle
	}
	return id
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st := h.sessions.Resolve(r.Context(), h.identity(r))
	if st.Err != nil {
		h.logger.Warn("Caller profile lookup failed", "principal", st.Principal, "error", st.Err)
	}
	h.writeData(w, http.StatusOK, st)
}

func (h *Handler) GetHome(w http.ResponseWriter, r *http.Request) {
	categories := h.market.Categories(r.Context())
	h.writeData(w, http.StatusOK, map[string]any{
		"categories": listOr(categories, h.logger, "categories"),
	})
}

// GetCategory loads a category's products and sellers concurrently. Either
// list degrades to empty on failure.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := h.pathID(w, r, "categoryId")
	if !ok {
		return
	}
	ctx := r.Context()

	var (
		wg       sync.WaitGroup
		products query.Result[[]models.ProductListing]
		sellers  query.Result[[]models.EntrepreneurProfile]
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		products = h.market.ProductsByCategory(ctx, &categoryID)
	}()
	go func() {
		defer wg.Done()
		sellers = h.market.ProfilesByCategory(ctx, &categoryID)
	}()
	wg.Wait()

	productList := listOr(products, h.logger, "products")
	h.writeData(w, http.StatusOK, map[string]any{
		"products": section[[]productView]{Status: productList.Status, Data: viewProducts(productList.Data), Error: productList.Error},
		"sellers":  listOr(sellers, h.logger, "sellers"),
	})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "productId")
	if !ok {
		return
	}
	ctx := r.Context()

	product := h.market.Product(ctx, &productID)
	if product.Err != nil && !product.HasData {
		h.writeError(w, product.Err)
		return
	}
	if product.Data == nil {
		h.writeData(w, http.StatusOK, map[string]any{"product": sectionOf(product)})
		return
	}

	seller := h.market.Profile(ctx, &product.Data.EntrepreneurID)
	h.writeData(w, http.StatusOK, map[string]any{
		"product": section[productView]{Status: product.Status.String(), Data: viewProduct(*product.Data)},
		"seller":  sectionOf(seller),
	})
}

func (h *Handler) GetSeller(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := h.pathID(w, r, "sellerId")
	if !ok {
		return
	}
	ctx := r.Context()

	var (
		wg       sync.WaitGroup
		profile  query.Result[*models.EntrepreneurProfile]
		products query.Result[[]models.ProductListing]
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		profile = h.market.Profile(ctx, &sellerID)
	}()
	go func() {
		defer wg.Done()
		products = h.market.ProductsByEntrepreneur(ctx, &sellerID)
	}()
	wg.Wait()

	if profile.Err != nil && !profile.HasData {
		h.writeError(w, profile.Err)
		return
	}

	productList := listOr(products, h.logger, "products")
	h.writeData(w, http.StatusOK, map[string]any{
		"profile":  sectionOf(profile),
		"products": section[[]productView]{Status: productList.Status, Data: viewProducts(productList.Data), Error: productList.Error},
	})
}

// GetDashboard is the seller's own view: their profile, listings and inbox.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.FromContext(ctx).Principal

	var (
		wg        sync.WaitGroup
		profile   query.Result[*models.EntrepreneurProfile]
		products  query.Result[[]models.ProductListing]
		inquiries query.Result[[]models.ProductInquiry]
	)

	owned := h.market.OwnedProfileID(ctx, principal)

	wg.Add(3)
	go func() {
		defer wg.Done()
		profile = h.market.MyProfile(ctx, principal)
	}()
	go func() {
		defer wg.Done()
		products = h.market.MyProducts(ctx, principal)
	}()
	go func() {
		defer wg.Done()
		inquiries = h.market.InquiriesByEntrepreneur(ctx, owned)
	}()
	wg.Wait()

	productList := listOr(products, h.logger, "my products")
	h.writeData(w, http.StatusOK, map[string]any{
		"session":   h.sessions.Resolve(ctx, h.identity(r)),
		"profile":   sectionOf(profile),
		"products":  section[[]productView]{Status: productList.Status, Data: viewProducts(productList.Data), Error: productList.Error},
		"inquiries": listOr(inquiries, h.logger, "inquiries"),
	})
}

// StreamInquiries pushes the caller's inbox as server-sent events: once on
// connect and again whenever a new inquiry invalidates it.
func (h *Handler) StreamInquiries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.FromContext(ctx).Principal

	owned := h.market.OwnedProfileID(ctx, principal)
	if owned == nil {
		h.writeError(w, apperr.NotFound("entrepreneur profile", principal))
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	sub := h.market.WatchInquiries(ctx, owned)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			payload, err := json.Marshal(listOr(query.Decode[[]models.ProductInquiry](snap), h.logger, "inquiries"))
			if err != nil {
				h.logger.Error("Failed to encode inquiries event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: inquiries\ndata: %s\n\n", payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Warn("Streaming not supported", "error", err)
				return
			}
		}
	}
}

func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var in models.UserProfile
	if !h.decode(w, r, &in) {
		return
	}
	principal := auth.FromContext(r.Context()).Principal
	writeOutcome(h, w, http.StatusOK, h.market.SaveCallerProfile(r.Context(), principal, in), nil)
}

func (h *Handler) SaveSellerProfile(w http.ResponseWriter, r *http.Request) {
	var in models.ProfileUpsert
	if !h.decode(w, r, &in) {
		return
	}
	principal := auth.FromContext(r.Context()).Principal
	writeOutcome(h, w, http.StatusOK, h.market.UpsertProfile(r.Context(), principal, in), nil)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var form marketplace.ProductForm
	if !h.decode(w, r, &form) {
		return
	}
	form.Target = models.CreateProduct()
	h.upsertProduct(w, r, http.StatusCreated, form)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "productId")
	if !ok {
		return
	}
	var form marketplace.ProductForm
	if !h.decode(w, r, &form) {
		return
	}
	form.Target = models.UpdateProduct(productID)
	h.upsertProduct(w, r, http.StatusOK, form)
}

func (h *Handler) upsertProduct(w http.ResponseWriter, r *http.Request, status int, form marketplace.ProductForm) {
	principal := auth.FromContext(r.Context()).Principal
	out := h.market.UpsertProduct(r.Context(), principal, form)
	writeOutcome(h, w, status, out, func(p *models.ProductListing) any {
		return viewProduct(*p)
	})
}

// CreateInquiry is public and rate limited per client IP.
func (h *Handler) CreateInquiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientIP := r.RemoteAddr
	if idx := strings.LastIndex(clientIP, ":"); idx != -1 {
		clientIP = clientIP[:idx]
	}
	if h.limiter != nil && h.limiter.IsRateLimited(ctx, "inquiry:"+clientIP) {
		h.logger.Warn("Rate limit exceeded", "ip", clientIP)
		h.writeError(w, apperr.RateLimitedError{})
		return
	}

	productID, ok := h.pathID(w, r, "productId")
	if !ok {
		return
	}
	var draft models.InquiryDraft
	if !h.decode(w, r, &draft) {
		return
	}
	draft.ProductID = &productID

	if draft.EntrepreneurID == nil {
		product := h.market.Product(ctx, &productID)
		if product.Data == nil {
			err := product.Err
			if err == nil {
				err = apperr.NotReady("marketplace service", nil)
			}
			h.writeError(w, err)
			return
		}
		draft.EntrepreneurID = product.Data.EntrepreneurID.Ptr()
	}

	writeOutcome(h, w, http.StatusCreated, h.market.CreateInquiry(ctx, draft), nil)
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.market.CallerRole(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]models.UserRole{"role": role})
}

func (h *Handler) GetAdminStatus(w http.ResponseWriter, r *http.Request) {
	admin, err := h.market.IsCallerAdmin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]bool{"admin": admin})
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var in models.RoleAssignment
	if !h.decode(w, r, &in) {
		return
	}
	writeOutcome(h, w, http.StatusOK, h.market.AssignRole(r.Context(), in), nil)
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	out := h.market.InitializeMarketplace(r.Context())
	writeOutcome(h, w, http.StatusOK, out, func(struct{}) any { return nil })
}

func (h *Handler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.market.UserProfile(r.Context(), r.PathValue("principal"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, profile)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (models.ID, bool) {
	id, err := models.ParseID(r.PathValue(name))
	if err != nil {
		h.writeError(w, apperr.Validation(name, "Invalid "+name))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, apperr.Validation("body", "Invalid request body"))
		return false
	}
	return true
}
