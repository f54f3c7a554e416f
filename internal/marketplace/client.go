// Package marketplace exposes every marketplace read as a cached query and
// every write as a mutation that invalidates the reads it affects.
package marketplace

import (
	"context"
	"log/slog"
	"sync"

	"marketplace-bff/internal/models"
	"marketplace-bff/internal/mutation"
	"marketplace-bff/internal/query"
	"marketplace-bff/internal/services"
)

// OwnerIndex remembers which entrepreneur profile a principal owns. The
// marketplace service has no lookup by owner, so the gateway records the id
// when a profile upsert succeeds.
type OwnerIndex interface {
	OwnedProfile(ctx context.Context, principal string) (models.ID, bool, error)
	RememberOwnedProfile(ctx context.Context, principal string, id models.ID) error
}

type MemoryOwnerIndex struct {
	mu     sync.RWMutex
	owners map[string]models.ID
}

func NewMemoryOwnerIndex() *MemoryOwnerIndex {
	return &MemoryOwnerIndex{owners: make(map[string]models.ID)}
}

func (m *MemoryOwnerIndex) OwnedProfile(_ context.Context, principal string) (models.ID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.owners[principal]
	return id, ok, nil
}

func (m *MemoryOwnerIndex) RememberOwnedProfile(_ context.Context, principal string, id models.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[principal] = id
	return nil
}

// Client is created once at startup and shared by every request.
type Client struct {
	backend services.Backend
	cache   *query.Cache
	coord   *mutation.Coordinator
	owners  OwnerIndex
	logger  *slog.Logger
}

func New(backend services.Backend, cache *query.Cache, coord *mutation.Coordinator, owners OwnerIndex, logger *slog.Logger) *Client {
	if owners == nil {
		owners = NewMemoryOwnerIndex()
	}
	return &Client{
		backend: backend,
		cache:   cache,
		coord:   coord,
		owners:  owners,
		logger:  logger.With("component", "marketplace"),
	}
}

func (c *Client) Cache() *query.Cache {
	return c.cache
}

func (c *Client) Categories(ctx context.Context) query.Result[[]models.ProductCategory] {
	return query.Get(ctx, c.cache, CategoriesKey(), query.Options{}, c.backend.ListCategories)
}

// CallerProfile is never retried: "no profile yet" and a failed lookup are
// both answers the session needs to see straight away.
func (c *Client) CallerProfile(ctx context.Context, principal string) query.Result[*models.UserProfile] {
	return query.Get(ctx, c.cache, CallerProfileKey(principal), query.Options{NoRetry: true}, c.backend.GetCallerProfile)
}

func (c *Client) PeekCallerProfile(ctx context.Context, principal string) query.Result[*models.UserProfile] {
	return query.Decode[*models.UserProfile](c.cache.Peek(ctx, CallerProfileKey(principal)))
}

func (c *Client) Profile(ctx context.Context, id *models.ID) query.Result[*models.EntrepreneurProfile] {
	return query.Get(ctx, c.cache, ProfileKey(id), query.Options{}, func(ctx context.Context) (*models.EntrepreneurProfile, error) {
		return c.backend.GetProfile(ctx, *id)
	})
}

func (c *Client) ProfilesByCategory(ctx context.Context, categoryID *models.ID) query.Result[[]models.EntrepreneurProfile] {
	return query.Get(ctx, c.cache, ProfilesByCategoryKey(categoryID), query.Options{}, func(ctx context.Context) ([]models.EntrepreneurProfile, error) {
		return c.backend.ListProfilesByCategory(ctx, *categoryID)
	})
}

func (c *Client) Product(ctx context.Context, id *models.ID) query.Result[*models.ProductListing] {
	return query.Get(ctx, c.cache, ProductKey(id), query.Options{}, func(ctx context.Context) (*models.ProductListing, error) {
		return c.backend.GetProduct(ctx, *id)
	})
}

func (c *Client) ProductsByCategory(ctx context.Context, categoryID *models.ID) query.Result[[]models.ProductListing] {
	return query.Get(ctx, c.cache, ProductsByCategoryKey(categoryID), query.Options{}, func(ctx context.Context) ([]models.ProductListing, error) {
		return c.backend.ListProductsByCategory(ctx, *categoryID)
	})
}

func (c *Client) ProductsByEntrepreneur(ctx context.Context, entrepreneurID *models.ID) query.Result[[]models.ProductListing] {
	return query.Get(ctx, c.cache, ProductsByEntrepreneurKey(entrepreneurID), query.Options{}, func(ctx context.Context) ([]models.ProductListing, error) {
		return c.backend.ListProductsByEntrepreneur(ctx, *entrepreneurID)
	})
}

func (c *Client) InquiriesByEntrepreneur(ctx context.Context, entrepreneurID *models.ID) query.Result[[]models.ProductInquiry] {
	return query.Get(ctx, c.cache, InquiriesByEntrepreneurKey(entrepreneurID), query.Options{}, func(ctx context.Context) ([]models.ProductInquiry, error) {
		return c.backend.ListInquiriesByEntrepreneur(ctx, *entrepreneurID)
	})
}

// WatchInquiries subscribes to an entrepreneur's inbox. The subscription is
// refetched whenever an inquiry to that entrepreneur is created.
func (c *Client) WatchInquiries(ctx context.Context, entrepreneurID *models.ID) *query.Subscription {
	return c.cache.Subscribe(ctx, InquiriesByEntrepreneurKey(entrepreneurID), query.Options{}, func(ctx context.Context) (any, error) {
		return c.backend.ListInquiriesByEntrepreneur(ctx, *entrepreneurID)
	})
}

// OwnedProfileID returns the entrepreneur profile principal owns, or nil when
// none is known.
func (c *Client) OwnedProfileID(ctx context.Context, principal string) *models.ID {
	if principal == "" {
		return nil
	}
	id, ok, err := c.owners.OwnedProfile(ctx, principal)
	if err != nil {
		c.logger.Warn("Owner index lookup failed", "principal", principal, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &id
}

// MyProfile is disabled until the caller owns a profile.
func (c *Client) MyProfile(ctx context.Context, principal string) query.Result[*models.EntrepreneurProfile] {
	id := c.OwnedProfileID(ctx, principal)
	if id == nil {
		return query.Result[*models.EntrepreneurProfile]{Status: query.StatusDisabled}
	}
	return query.Get(ctx, c.cache, MyProfileKey(principal), query.Options{}, func(ctx context.Context) (*models.EntrepreneurProfile, error) {
		return c.backend.GetProfile(ctx, *id)
	})
}

func (c *Client) MyProducts(ctx context.Context, principal string) query.Result[[]models.ProductListing] {
	id := c.OwnedProfileID(ctx, principal)
	if id == nil {
		return query.Result[[]models.ProductListing]{Status: query.StatusDisabled}
	}
	return query.Get(ctx, c.cache, MyProductsKey(principal), query.Options{}, func(ctx context.Context) ([]models.ProductListing, error) {
		return c.backend.ListProductsByEntrepreneur(ctx, *id)
	})
}

// UserProfile looks up another user's profile. Admin reads are not cached.
func (c *Client) UserProfile(ctx context.Context, principal string) (*models.UserProfile, error) {
	return c.backend.GetUserProfile(ctx, principal)
}

func (c *Client) CallerRole(ctx context.Context) (models.UserRole, error) {
	return c.backend.CallerRole(ctx)
}

func (c *Client) IsCallerAdmin(ctx context.Context) (bool, error) {
	return c.backend.IsCallerAdmin(ctx)
}
