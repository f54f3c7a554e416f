package marketplace

import (
	"context"
	"strings"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/mutation"
	"marketplace-bff/internal/query"
)

const fillAllFields = "Please fill in all fields"

// ProductForm is a product write as entered: the price is major-unit text
// and is converted to minor units here and nowhere else.
type ProductForm struct {
	Target         models.ProductTarget `json:"-"`
	EntrepreneurID *models.ID           `json:"entrepreneurId"`
	Name           string               `json:"name" validate:"required"`
	Description    string               `json:"description" validate:"required"`
	Price          string               `json:"price" validate:"required"`
	CategoryID     *models.ID           `json:"categoryId"`

	price models.Price
}

// Upsert converts a prepared form into its wire form. Both ids must be set.
func (f ProductForm) Upsert() models.ProductUpsert {
	in := models.ProductUpsert{
		EntrepreneurID: *f.EntrepreneurID,
		Name:           f.Name,
		Description:    f.Description,
		Price:          f.price,
		CategoryID:     *f.CategoryID,
	}
	if id, ok := f.Target.ID(); ok {
		in.ProductID = id.Ptr()
	}
	return in
}

func prepareProductForm(f ProductForm) (ProductForm, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.Price = strings.TrimSpace(f.Price)
	if f.Name == "" || f.Description == "" || f.Price == "" || f.CategoryID == nil {
		return f, apperr.Validation("", fillAllFields)
	}
	if f.EntrepreneurID == nil {
		return f, apperr.Validation("entrepreneurId", "Create your seller profile first")
	}
	price, err := models.ParsePrice(f.Price)
	if err != nil {
		return f, apperr.Validation("price", "Please enter a valid price")
	}
	f.price = price
	return f, nil
}

func prepareProfile(p models.UserProfile) (models.UserProfile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	return p, nil
}

func prepareProfileUpsert(p models.ProfileUpsert) (models.ProfileUpsert, error) {
	p.BusinessName = strings.TrimSpace(p.BusinessName)
	p.Contact = strings.TrimSpace(p.Contact)
	p.Description = strings.TrimSpace(p.Description)
	if p.CategoryID == nil {
		return p, apperr.Validation("categoryId", fillAllFields)
	}
	return p, nil
}

func prepareInquiry(d models.InquiryDraft) (models.InquiryDraft, error) {
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.CustomerContact = strings.TrimSpace(d.CustomerContact)
	d.Message = strings.TrimSpace(d.Message)
	if d.ProductID == nil || d.EntrepreneurID == nil {
		return d, apperr.Validation("productId", "Pick a product to ask about")
	}
	return d, nil
}

// SaveCallerProfile stores the caller's own user profile.
func (c *Client) SaveCallerProfile(ctx context.Context, principal string, profile models.UserProfile) mutation.Outcome[models.UserProfile] {
	return mutation.Run(ctx, c.coord, mutation.Mutation[models.UserProfile, models.UserProfile]{
		Name:    "save_caller_profile",
		Prepare: prepareProfile,
		Do: func(ctx context.Context, p models.UserProfile) (models.UserProfile, error) {
			return p, c.backend.SaveCallerProfile(ctx, p)
		},
		Invalidates: func(models.UserProfile, models.UserProfile) []query.Key {
			return []query.Key{CallerProfileKey(principal)}
		},
		Success: func(models.UserProfile, models.UserProfile) string { return "Profile saved!" },
		Failure: "Failed to save profile",
	}, profile)
}

// UpsertProfile creates the caller's entrepreneur profile or updates it in
// place.
func (c *Client) UpsertProfile(ctx context.Context, principal string, in models.ProfileUpsert) mutation.Outcome[*models.EntrepreneurProfile] {
	existed := c.OwnedProfileID(ctx, principal) != nil

	return mutation.Run(ctx, c.coord, mutation.Mutation[models.ProfileUpsert, *models.EntrepreneurProfile]{
		Name:    "upsert_profile",
		Prepare: prepareProfileUpsert,
		Do: func(ctx context.Context, in models.ProfileUpsert) (*models.EntrepreneurProfile, error) {
			profile, err := c.backend.UpsertEntrepreneurProfile(ctx, in)
			if err != nil {
				return nil, err
			}
			if err := c.owners.RememberOwnedProfile(ctx, principal, profile.ID); err != nil {
				c.logger.Warn("Owner index write failed", "principal", principal, "error", err)
			}
			return profile, nil
		},
		Invalidates: func(_ models.ProfileUpsert, out *models.EntrepreneurProfile) []query.Key {
			return []query.Key{
				query.Prefix(opProfiles),
				ProfileKey(&out.ID),
				MyProfileKey(principal),
				MyProductsKey(principal),
			}
		},
		Success: func(models.ProfileUpsert, *models.EntrepreneurProfile) string {
			if existed {
				return "Profile updated successfully!"
			}
			return "Profile created successfully!"
		},
		Failure: "Failed to save profile",
	}, in)
}

// UpsertProduct creates or updates a listing depending on form.Target.
func (c *Client) UpsertProduct(ctx context.Context, principal string, form ProductForm) mutation.Outcome[*models.ProductListing] {
	return mutation.Run(ctx, c.coord, mutation.Mutation[ProductForm, *models.ProductListing]{
		Name:    "upsert_product",
		Prepare: prepareProductForm,
		Do: func(ctx context.Context, f ProductForm) (*models.ProductListing, error) {
			return c.backend.UpsertProduct(ctx, f.Upsert())
		},
		Invalidates: func(_ ProductForm, out *models.ProductListing) []query.Key {
			return []query.Key{
				query.Prefix(opProducts),
				ProductKey(&out.ID),
				MyProductsKey(principal),
			}
		},
		Success: func(f ProductForm, _ *models.ProductListing) string {
			if f.Target.Kind() == models.UpsertUpdate {
				return "Product updated!"
			}
			return "Product created!"
		},
		Failure: "Failed to save product",
	}, form)
}

// CreateInquiry sends an inquiry and refreshes only the receiving
// entrepreneur's inbox.
func (c *Client) CreateInquiry(ctx context.Context, draft models.InquiryDraft) mutation.Outcome[*models.ProductInquiry] {
	return mutation.Run(ctx, c.coord, mutation.Mutation[models.InquiryDraft, *models.ProductInquiry]{
		Name:    "create_inquiry",
		Prepare: prepareInquiry,
		Do:      c.backend.CreateInquiry,
		Invalidates: func(d models.InquiryDraft, _ *models.ProductInquiry) []query.Key {
			return []query.Key{InquiriesByEntrepreneurKey(d.EntrepreneurID)}
		},
		Success: func(models.InquiryDraft, *models.ProductInquiry) string { return "Your inquiry has been sent!" },
		Failure: "Failed to send inquiry",
	}, draft)
}

func (c *Client) AssignRole(ctx context.Context, in models.RoleAssignment) mutation.Outcome[models.RoleAssignment] {
	return mutation.Run(ctx, c.coord, mutation.Mutation[models.RoleAssignment, models.RoleAssignment]{
		Name: "assign_role",
		Prepare: func(in models.RoleAssignment) (models.RoleAssignment, error) {
			in.Principal = strings.TrimSpace(in.Principal)
			if in.Principal == "" {
				return in, apperr.Validation("principal", fillAllFields)
			}
			if !in.Role.Valid() {
				return in, apperr.Validation("role", "Unknown role "+string(in.Role))
			}
			return in, nil
		},
		Do: func(ctx context.Context, in models.RoleAssignment) (models.RoleAssignment, error) {
			return in, c.backend.AssignRole(ctx, in)
		},
		Success: func(in models.RoleAssignment, _ models.RoleAssignment) string {
			return "Role " + string(in.Role) + " assigned"
		},
		Failure: "Failed to assign role",
	}, in)
}

// InitializeMarketplace seeds the category list. Running it again is a no-op
// on the service side.
func (c *Client) InitializeMarketplace(ctx context.Context) mutation.Outcome[struct{}] {
	return mutation.Run(ctx, c.coord, mutation.Mutation[struct{}, struct{}]{
		Name: "initialize_marketplace",
		Do: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, c.backend.InitializeMarketplace(ctx)
		},
		Invalidates: func(struct{}, struct{}) []query.Key {
			return []query.Key{CategoriesKey()}
		},
		Success: func(struct{}, struct{}) string { return "Marketplace initialized" },
		Failure: "Failed to initialize marketplace",
	}, struct{}{})
}
