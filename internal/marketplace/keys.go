package marketplace

import (
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/query"
)

// Query operation names. Invalidation matches on whole segments, so
// "profile" never touches "profiles".
const (
	opCategories    = "categories"
	opCallerProfile = "currentUserProfile"
	opProfile       = "profile"
	opProfiles      = "profiles"
	opProduct       = "product"
	opProducts      = "products"
	opInquiries     = "inquiries"
	opMyProfile     = "myProfile"
	opMyProducts    = "myProducts"
	segCategory     = "category"
	segEntrepreneur = "entrepreneur"
)

func CategoriesKey() query.Key {
	return query.Build(opCategories)
}

func CallerProfileKey(principal string) query.Key {
	return query.Build(opCallerProfile, query.Text(principal))
}

func ProfileKey(id *models.ID) query.Key {
	return query.Build(opProfile, query.ID(id))
}

func ProfilesByCategoryKey(categoryID *models.ID) query.Key {
	return query.Build(opProfiles, query.Lit(segCategory), query.ID(categoryID))
}

func ProductKey(id *models.ID) query.Key {
	return query.Build(opProduct, query.ID(id))
}

func ProductsByCategoryKey(categoryID *models.ID) query.Key {
	return query.Build(opProducts, query.Lit(segCategory), query.ID(categoryID))
}

func ProductsByEntrepreneurKey(entrepreneurID *models.ID) query.Key {
	return query.Build(opProducts, query.Lit(segEntrepreneur), query.ID(entrepreneurID))
}

func InquiriesByEntrepreneurKey(entrepreneurID *models.ID) query.Key {
	return query.Build(opInquiries, query.Lit(segEntrepreneur), query.ID(entrepreneurID))
}

func MyProfileKey(principal string) query.Key {
	return query.Build(opMyProfile, query.Text(principal))
}

func MyProductsKey(principal string) query.Key {
	return query.Build(opMyProducts, query.Text(principal))
}
