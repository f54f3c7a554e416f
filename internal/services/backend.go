package services

import (
	"context"

	"marketplace-bff/internal/models"
)

// Backend is the marketplace service as seen by the gateway. Operations that
// act "as the caller" take the caller from ctx (see auth.WithIdentity).
type Backend interface {
	ListCategories(ctx context.Context) ([]models.ProductCategory, error)

	GetProduct(ctx context.Context, id models.ID) (*models.ProductListing, error)
	ListProductsByCategory(ctx context.Context, categoryID models.ID) ([]models.ProductListing, error)
	ListProductsByEntrepreneur(ctx context.Context, entrepreneurID models.ID) ([]models.ProductListing, error)
	UpsertProduct(ctx context.Context, in models.ProductUpsert) (*models.ProductListing, error)

	GetProfile(ctx context.Context, id models.ID) (*models.EntrepreneurProfile, error)
	ListProfilesByCategory(ctx context.Context, categoryID models.ID) ([]models.EntrepreneurProfile, error)
	UpsertEntrepreneurProfile(ctx context.Context, in models.ProfileUpsert) (*models.EntrepreneurProfile, error)

	// GetCallerProfile returns nil when the caller has not saved a profile.
	GetCallerProfile(ctx context.Context) (*models.UserProfile, error)
	SaveCallerProfile(ctx context.Context, profile models.UserProfile) error
	GetUserProfile(ctx context.Context, principal string) (*models.UserProfile, error)

	CreateInquiry(ctx context.Context, in models.InquiryDraft) (*models.ProductInquiry, error)
	ListInquiriesByEntrepreneur(ctx context.Context, entrepreneurID models.ID) ([]models.ProductInquiry, error)

	AssignRole(ctx context.Context, in models.RoleAssignment) error
	CallerRole(ctx context.Context) (models.UserRole, error)
	IsCallerAdmin(ctx context.Context) (bool, error)
	InitializeMarketplace(ctx context.Context) error
}

// Readiness reports whether a Backend can take calls yet.
type Readiness interface {
	Ready() bool
}

// AlwaysReady is the Readiness of in-process backends.
type AlwaysReady struct{}

func (AlwaysReady) Ready() bool { return true }
