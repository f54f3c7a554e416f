package backend

import (
	"context"

	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/services"
)

// Local calls a Store in process. The caller is taken from the context the
// same way the HTTP handler takes it from the bearer token.
type Local struct {
	store *Store
}

var _ services.Backend = (*Local)(nil)

func NewLocal(store *Store) *Local {
	return &Local{store: store}
}

func caller(ctx context.Context) string {
	return auth.FromContext(ctx).Principal
}

func (l *Local) ListCategories(ctx context.Context) ([]models.ProductCategory, error) {
	return l.store.ListCategories(), nil
}

func (l *Local) GetProduct(ctx context.Context, id models.ID) (*models.ProductListing, error) {
	return l.store.GetProduct(id)
}

func (l *Local) ListProductsByCategory(ctx context.Context, categoryID models.ID) ([]models.ProductListing, error) {
	return l.store.ListProductsByCategory(categoryID), nil
}

func (l *Local) ListProductsByEntrepreneur(ctx context.Context, entrepreneurID models.ID) ([]models.ProductListing, error) {
	return l.store.ListProductsByEntrepreneur(entrepreneurID), nil
}

func (l *Local) UpsertProduct(ctx context.Context, in models.ProductUpsert) (*models.ProductListing, error) {
	return l.store.UpsertProduct(caller(ctx), in)
}

func (l *Local) GetProfile(ctx context.Context, id models.ID) (*models.EntrepreneurProfile, error) {
	return l.store.GetProfile(id)
}

func (l *Local) ListProfilesByCategory(ctx context.Context, categoryID models.ID) ([]models.EntrepreneurProfile, error) {
	return l.store.ListProfilesByCategory(categoryID), nil
}

func (l *Local) UpsertEntrepreneurProfile(ctx context.Context, in models.ProfileUpsert) (*models.EntrepreneurProfile, error) {
	return l.store.UpsertEntrepreneurProfile(caller(ctx), in)
}

func (l *Local) GetCallerProfile(ctx context.Context) (*models.UserProfile, error) {
	return l.store.GetCallerProfile(caller(ctx)), nil
}

func (l *Local) SaveCallerProfile(ctx context.Context, profile models.UserProfile) error {
	return l.store.SaveCallerProfile(caller(ctx), profile)
}

func (l *Local) GetUserProfile(ctx context.Context, principal string) (*models.UserProfile, error) {
	return l.store.GetUserProfile(caller(ctx), principal)
}

func (l *Local) CreateInquiry(ctx context.Context, in models.InquiryDraft) (*models.ProductInquiry, error) {
	return l.store.CreateInquiry(in)
}

func (l *Local) ListInquiriesByEntrepreneur(ctx context.Context, entrepreneurID models.ID) ([]models.ProductInquiry, error) {
	return l.store.ListInquiriesByEntrepreneur(caller(ctx), entrepreneurID)
}

func (l *Local) AssignRole(ctx context.Context, in models.RoleAssignment) error {
	return l.store.AssignRole(caller(ctx), in)
}

func (l *Local) CallerRole(ctx context.Context) (models.UserRole, error) {
	return l.store.CallerRole(caller(ctx)), nil
}

func (l *Local) IsCallerAdmin(ctx context.Context) (bool, error) {
	return l.store.IsCallerAdmin(caller(ctx)), nil
}

func (l *Local) InitializeMarketplace(ctx context.Context) error {
	return l.store.InitializeMarketplace(caller(ctx))
}
