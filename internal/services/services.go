package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/config"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/resilience"
	"marketplace-bff/internal/telemetry"
)

const dependencyName = "marketplace service"

// ServiceClient talks JSON over HTTP to the marketplace service. Calls are
// not retried; a run of server-side failures opens the circuit breaker, which
// callers observe as a NotReadyError.
type ServiceClient struct {
	baseURL string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger

	readyAttempts int
	readyDelay    time.Duration

	ready   atomic.Bool
	mu      sync.Mutex
	onReady []func()
}

var _ Backend = (*ServiceClient)(nil)

func NewServiceClient(cfg *config.Config, logger *slog.Logger) *ServiceClient {
	breaker := resilience.NewCircuitBreaker("marketplace", cfg.BreakerThreshold, cfg.BreakerTimeout)
	breaker.OnStateChange(func(name string, to resilience.State) {
		telemetry.BreakerState.WithLabelValues(name).Set(float64(to))
	})

	return &ServiceClient{
		baseURL: cfg.BackendURL,
		client: &http.Client{
			Timeout: cfg.BackendTimeout,
		},
		breaker:       breaker,
		logger:        logger.With("component", "services"),
		readyAttempts: cfg.ReadyAttempts,
		readyDelay:    cfg.ReadyDelay,
	}
}

func (s *ServiceClient) Ready() bool {
	return s.ready.Load()
}

// OnReady registers fn to run once the service becomes ready. If it already
// is, fn runs immediately.
func (s *ServiceClient) OnReady(fn func()) {
	s.mu.Lock()
	if s.ready.Load() {
		s.mu.Unlock()
		fn()
		return
	}
	s.onReady = append(s.onReady, fn)
	s.mu.Unlock()
}

// WaitReady probes the service health endpoint until it answers or ctx ends.
func (s *ServiceClient) WaitReady(ctx context.Context) error {
	for {
		err := resilience.Retry(ctx, s.readyAttempts, s.readyDelay, func() error {
			return s.probe(ctx)
		})
		if err == nil {
			s.markReady()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Marketplace service not ready yet", "url", s.baseURL, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.readyDelay):
		}
	}
}

func (s *ServiceClient) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check status: %d", resp.StatusCode)
	}
	return nil
}

func (s *ServiceClient) markReady() {
	s.mu.Lock()
	if s.ready.Load() {
		s.mu.Unlock()
		return
	}
	s.ready.Store(true)
	callbacks := s.onReady
	s.onReady = nil
	s.mu.Unlock()

	s.logger.Info("Marketplace service ready", "url", s.baseURL)
	for _, fn := range callbacks {
		fn()
	}
}

type call struct {
	op     string
	method string
	path   string
	body   any
	entity string
	id     string
}

func (s *ServiceClient) do(ctx context.Context, c call, target any) error {
	if !s.Ready() {
		return apperr.NotReady(dependencyName, nil)
	}

	err := s.breaker.Execute(func() error {
		return s.roundTrip(ctx, c, target)
	}, callerFault)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperr.NotReady(dependencyName, err)
	}
	return err
}

// callerFault keeps 4xx answers from tripping the breaker.
func callerFault(err error) bool {
	if apperr.IsNotFound(err) {
		return true
	}
	var remote *apperr.RemoteError
	return errors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500
}

func (s *ServiceClient) roundTrip(ctx context.Context, c call, target any) error {
	var body io.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", c.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, s.baseURL+c.path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.op, err)
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := auth.FromContext(ctx); id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
	if rid := telemetry.RequestID(ctx); rid != "" {
		req.Header.Set(telemetry.RequestIDHeader, rid)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Remote(c.op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperr.NotFound(c.entity, c.id)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Remote(c.op, resp.StatusCode, errors.New(errorMessage(resp.Body)))
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return apperr.Remote(c.op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func errorMessage(r io.Reader) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	if len(raw) > 0 {
		return string(bytes.TrimSpace(raw))
	}
	return "unexpected status"
}

func optionalID(id *models.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func (s *ServiceClient) ListCategories(ctx context.Context) ([]models.ProductCategory, error) {
	var categories []models.ProductCategory
	err := s.do(ctx, call{op: "listCategories", method: http.MethodGet, path: "/categories", entity: "categories"}, &categories)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *ServiceClient) GetProduct(ctx context.Context, id models.ID) (*models.ProductListing, error) {
	var product models.ProductListing
	err := s.do(ctx, call{op: "getProduct", method: http.MethodGet, path: "/products/" + id.String(), entity: "product", id: id.String()}, &product)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ServiceClient) ListProductsByCategory(ctx context.Context, categoryID models.ID) ([]models.ProductListing, error) {
	var products []models.ProductListing
	err := s.do(ctx, call{op: "listProductsByCategory", method: http.MethodGet, path: "/categories/" + categoryID.String() + "/products", entity: "category", id: categoryID.String()}, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *ServiceClient) ListProductsByEntrepreneur(ctx context.Context, entrepreneurID models.ID) ([]models.ProductListing, error) {
	var products []models.ProductListing
	err := s.do(ctx, call{op: "listProductsByEntrepreneur", method: http.MethodGet, path: "/entrepreneurs/" + entrepreneurID.String() + "/products", entity: "entrepreneur", id: entrepreneurID.String()}, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *ServiceClient) UpsertProduct(ctx context.Context, in models.ProductUpsert) (*models.ProductListing, error) {
	var product models.ProductListing
	id := ""
	if pid, ok := in.Target().ID(); ok {
		id = pid.String()
	}
	err := s.do(ctx, call{op: "upsertProduct", method: http.MethodPut, path: "/products", body: in, entity: "product", id: id}, &product)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ServiceClient) GetProfile(ctx context.Context, id models.ID) (*models.EntrepreneurProfile, error) {
	var profile models.EntrepreneurProfile
	err := s.do(ctx, call{op: "getProfile", method: http.MethodGet, path: "/profiles/" + id.String(), entity: "profile", id: id.String()}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *ServiceClient) ListProfilesByCategory(ctx context.Context, categoryID models.ID) ([]models.EntrepreneurProfile, error) {
	var profiles []models.EntrepreneurProfile
	err := s.do(ctx, call{op: "listProfilesByCategory", method: http.MethodGet, path: "/categories/" + categoryID.String() + "/profiles", entity: "category", id: categoryID.String()}, &profiles)
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *ServiceClient) UpsertEntrepreneurProfile(ctx context.Context, in models.ProfileUpsert) (*models.EntrepreneurProfile, error) {
	var profile models.EntrepreneurProfile
	err := s.do(ctx, call{op: "upsertEntrepreneurProfile", method: http.MethodPut, path: "/me/entrepreneur-profile", body: in, entity: "category", id: optionalID(in.CategoryID)}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *ServiceClient) GetCallerProfile(ctx context.Context) (*models.UserProfile, error) {
	var profile *models.UserProfile
	err := s.do(ctx, call{op: "getCallerProfile", method: http.MethodGet, path: "/me/profile", entity: "user profile"}, &profile)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *ServiceClient) SaveCallerProfile(ctx context.Context, profile models.UserProfile) error {
	return s.do(ctx, call{op: "saveCallerProfile", method: http.MethodPut, path: "/me/profile", body: profile, entity: "user profile"}, nil)
}

func (s *ServiceClient) GetUserProfile(ctx context.Context, principal string) (*models.UserProfile, error) {
	var profile *models.UserProfile
	err := s.do(ctx, call{op: "getUserProfile", method: http.MethodGet, path: "/users/" + url.PathEscape(principal) + "/profile", entity: "user", id: principal}, &profile)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *ServiceClient) CreateInquiry(ctx context.Context, in models.InquiryDraft) (*models.ProductInquiry, error) {
	var inquiry models.ProductInquiry
	err := s.do(ctx, call{op: "createInquiry", method: http.MethodPost, path: "/inquiries", body: in, entity: "product", id: optionalID(in.ProductID)}, &inquiry)
	if err != nil {
		return nil, err
	}
	return &inquiry, nil
}

func (s *ServiceClient) ListInquiriesByEntrepreneur(ctx context.Context, entrepreneurID models.ID) ([]models.ProductInquiry, error) {
	var inquiries []models.ProductInquiry
	err := s.do(ctx, call{op: "listInquiriesByEntrepreneur", method: http.MethodGet, path: "/entrepreneurs/" + entrepreneurID.String() + "/inquiries", entity: "entrepreneur", id: entrepreneurID.String()}, &inquiries)
	if err != nil {
		return nil, err
	}
	return inquiries, nil
}

func (s *ServiceClient) AssignRole(ctx context.Context, in models.RoleAssignment) error {
	return s.do(ctx, call{op: "assignRole", method: http.MethodPost, path: "/admin/roles", body: in, entity: "user", id: in.Principal}, nil)
}

func (s *ServiceClient) CallerRole(ctx context.Context) (models.UserRole, error) {
	var out struct {
		Role models.UserRole `json:"role"`
	}
	if err := s.do(ctx, call{op: "callerRole", method: http.MethodGet, path: "/me/role", entity: "role"}, &out); err != nil {
		return "", err
	}
	return out.Role, nil
}

func (s *ServiceClient) IsCallerAdmin(ctx context.Context) (bool, error) {
	var out struct {
		Admin bool `json:"admin"`
	}
	if err := s.do(ctx, call{op: "isCallerAdmin", method: http.MethodGet, path: "/me/admin", entity: "role"}, &out); err != nil {
		return false, err
	}
	return out.Admin, nil
}

func (s *ServiceClient) InitializeMarketplace(ctx context.Context) error {
	return s.do(ctx, call{op: "initializeMarketplace", method: http.MethodPost, path: "/admin/initialize", entity: "marketplace"}, nil)
}
