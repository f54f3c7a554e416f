// Package backend is an in-memory marketplace service. It backs local
// development and tests; production deployments point the gateway at the
// real service instead.
package backend

import (
	"slices"
	"sync"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/models"
)

var seedCategories = []models.ProductCategory{
	{Name: "Food & Drinks", Description: "Home cooking, baked goods and local produce"},
	{Name: "Handicrafts", Description: "Handmade goods, pottery and woodwork"},
	{Name: "Fashion", Description: "Clothing, accessories and jewelry"},
	{Name: "Beauty & Wellness", Description: "Cosmetics, hair care and massage"},
	{Name: "Home & Garden", Description: "Furniture, decor, plants and seedlings"},
	{Name: "Services", Description: "Repairs, tutoring and everything else people do for hire"},
}

// Store holds all marketplace state behind one lock. Every method takes the
// calling principal explicitly; an empty or anonymous principal is a guest.
type Store struct {
	mu sync.RWMutex

	nextID models.ID

	categories map[models.ID]models.ProductCategory
	profiles   map[models.ID]models.EntrepreneurProfile
	owners     map[string]models.ID
	products   map[models.ID]models.ProductListing
	inquiries  []models.ProductInquiry
	users      map[string]models.UserProfile
	roles      map[string]models.UserRole
}

func NewStore() *Store {
	return &Store{
		categories: make(map[models.ID]models.ProductCategory),
		profiles:   make(map[models.ID]models.EntrepreneurProfile),
		owners:     make(map[string]models.ID),
		products:   make(map[models.ID]models.ProductListing),
		users:      make(map[string]models.UserProfile),
		roles:      make(map[string]models.UserRole),
	}
}

func anonymous(principal string) bool {
	return auth.Identity{Principal: principal}.Anonymous()
}

// newIDLocked hands out ids from a counter starting at 0.
func (s *Store) newIDLocked() models.ID {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) isAdminLocked(principal string) bool {
	return s.roles[principal] == models.RoleAdmin
}

// InitializeMarketplace seeds the categories once. The first caller to run it
// becomes the admin.
func (s *Store) InitializeMarketplace(principal string) error {
	if anonymous(principal) {
		return apperr.Forbidden("log in to initialize the marketplace")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.categories) > 0 {
		return nil
	}
	for _, c := range seedCategories {
		c.ID = s.newIDLocked()
		s.categories[c.ID] = c
	}
	s.roles[principal] = models.RoleAdmin
	return nil
}

func (s *Store) ListCategories() []models.ProductCategory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedByID(s.categories, func(c models.ProductCategory) models.ID { return c.ID })
}

func (s *Store) GetProduct(id models.ID) (*models.ProductListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id.String())
	}
	return &p, nil
}

func (s *Store) ListProductsByCategory(categoryID models.ID) []models.ProductListing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterProducts(s.products, func(p models.ProductListing) bool { return p.Category.ID == categoryID })
}

func (s *Store) ListProductsByEntrepreneur(entrepreneurID models.ID) []models.ProductListing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterProducts(s.products, func(p models.ProductListing) bool { return p.EntrepreneurID == entrepreneurID })
}

// UpsertProduct creates or updates a listing. The caller must own the
// entrepreneur profile, and only a listing's creator may update it.
func (s *Store) UpsertProduct(principal string, in models.ProductUpsert) (*models.ProductListing, error) {
	if anonymous(principal) {
		return nil, apperr.Forbidden("log in to manage products")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[in.EntrepreneurID]
	if !ok {
		return nil, apperr.NotFound("profile", in.EntrepreneurID.String())
	}
	if profile.CreatorPrincipal != principal {
		return nil, apperr.Forbidden("only the profile owner can list products")
	}
	category, ok := s.categories[in.CategoryID]
	if !ok {
		return nil, apperr.NotFound("category", in.CategoryID.String())
	}

	listing := models.ProductListing{
		Name:             in.Name,
		Description:      in.Description,
		Price:            in.Price,
		Category:         category,
		EntrepreneurID:   in.EntrepreneurID,
		CreatorPrincipal: principal,
	}

	if id, update := in.Target().ID(); update {
		existing, ok := s.products[id]
		if !ok {
			return nil, apperr.NotFound("product", id.String())
		}
		if existing.CreatorPrincipal != principal {
			return nil, apperr.Forbidden("only the creator can update this product")
		}
		listing.ID = id
	} else {
		listing.ID = s.newIDLocked()
	}

	s.products[listing.ID] = listing
	return &listing, nil
}

func (s *Store) GetProfile(id models.ID) (*models.EntrepreneurProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, apperr.NotFound("profile", id.String())
	}
	return &p, nil
}

func (s *Store) ListProfilesByCategory(categoryID models.ID) []models.EntrepreneurProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.EntrepreneurProfile
	for _, p := range sortedByID(s.profiles, func(p models.EntrepreneurProfile) models.ID { return p.ID }) {
		if p.Category.ID == categoryID {
			out = append(out, p)
		}
	}
	if out == nil {
		out = []models.EntrepreneurProfile{}
	}
	return out
}

// UpsertEntrepreneurProfile keeps one profile per principal: a second call
// updates it in place.
func (s *Store) UpsertEntrepreneurProfile(principal string, in models.ProfileUpsert) (*models.EntrepreneurProfile, error) {
	if anonymous(principal) {
		return nil, apperr.Forbidden("log in to create a seller profile")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.CategoryID == nil {
		return nil, apperr.Validation("categoryId", "category is required")
	}
	category, ok := s.categories[*in.CategoryID]
	if !ok {
		return nil, apperr.NotFound("category", in.CategoryID.String())
	}

	id, exists := s.owners[principal]
	if !exists {
		id = s.newIDLocked()
		s.owners[principal] = id
	}
	profile := models.EntrepreneurProfile{
		ID:               id,
		BusinessName:     in.BusinessName,
		Contact:          in.Contact,
		Description:      in.Description,
		Category:         category,
		CreatorPrincipal: principal,
	}
	s.profiles[id] = profile
	return &profile, nil
}

func (s *Store) GetCallerProfile(principal string) *models.UserProfile {
	if anonymous(principal) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[principal]
	if !ok {
		return nil
	}
	return &p
}

func (s *Store) SaveCallerProfile(principal string, profile models.UserProfile) error {
	if anonymous(principal) {
		return apperr.Forbidden("log in to save a profile")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[principal] = profile
	return nil
}

// GetUserProfile lets a user read their own profile and admins read anyone's.
func (s *Store) GetUserProfile(caller, principal string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if caller != principal && !s.isAdminLocked(caller) {
		return nil, apperr.Forbidden("can only view your own profile")
	}
	p, ok := s.users[principal]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// CreateInquiry appends an inquiry. Anyone may ask, logged in or not.
func (s *Store) CreateInquiry(in models.InquiryDraft) (*models.ProductInquiry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ProductID == nil || in.EntrepreneurID == nil {
		return nil, apperr.Validation("productId", "product and seller are required")
	}
	product, ok := s.products[*in.ProductID]
	if !ok {
		return nil, apperr.NotFound("product", in.ProductID.String())
	}
	if product.EntrepreneurID != *in.EntrepreneurID {
		return nil, apperr.Validation("entrepreneurId", "product does not belong to this seller")
	}

	inquiry := models.ProductInquiry{
		ID:              s.newIDLocked(),
		CustomerName:    in.CustomerName,
		CustomerContact: in.CustomerContact,
		Message:         in.Message,
		ProductID:       *in.ProductID,
		EntrepreneurID:  *in.EntrepreneurID,
	}
	s.inquiries = append(s.inquiries, inquiry)
	return &inquiry, nil
}

// ListInquiriesByEntrepreneur is restricted to the profile owner and admins.
func (s *Store) ListInquiriesByEntrepreneur(caller string, entrepreneurID models.ID) ([]models.ProductInquiry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[entrepreneurID]
	if !ok {
		return nil, apperr.NotFound("profile", entrepreneurID.String())
	}
	if profile.CreatorPrincipal != caller && !s.isAdminLocked(caller) {
		return nil, apperr.Forbidden("only the seller can read their inquiries")
	}

	out := []models.ProductInquiry{}
	for _, q := range s.inquiries {
		if q.EntrepreneurID == entrepreneurID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *Store) AssignRole(caller string, in models.RoleAssignment) error {
	if !in.Role.Valid() {
		return apperr.Validation("role", "unknown role "+string(in.Role))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isAdminLocked(caller) {
		return apperr.Forbidden("only admins can assign roles")
	}
	s.roles[in.Principal] = in.Role
	return nil
}

func (s *Store) CallerRole(principal string) models.UserRole {
	if anonymous(principal) {
		return models.RoleGuest
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if role, ok := s.roles[principal]; ok {
		return role
	}
	return models.RoleUser
}

func (s *Store) IsCallerAdmin(principal string) bool {
	return s.CallerRole(principal) == models.RoleAdmin
}

func filterProducts(products map[models.ID]models.ProductListing, keep func(models.ProductListing) bool) []models.ProductListing {
	out := []models.ProductListing{}
	for _, p := range sortedByID(products, func(p models.ProductListing) models.ID { return p.ID }) {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func sortedByID[T any](m map[models.ID]T, id func(T) models.ID) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b T) int {
		switch {
		case id(a) < id(b):
			return -1
		case id(a) > id(b):
			return 1
		}
		return 0
	})
	return out
}
