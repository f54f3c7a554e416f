package models

type ProductCategory struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type EntrepreneurProfile struct {
	ID               ID              `json:"id"`
	BusinessName     string          `json:"businessName"`
	Contact          string          `json:"contact"`
	Description      string          `json:"description"`
	Category         ProductCategory `json:"category"`
	CreatorPrincipal string          `json:"creatorPrincipal"`
}

type ProductListing struct {
	ID               ID              `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Price            Price           `json:"price"`
	Category         ProductCategory `json:"category"`
	EntrepreneurID   ID              `json:"entrepreneurId"`
	CreatorPrincipal string          `json:"creatorPrincipal"`
}

type ProductInquiry struct {
	ID              ID     `json:"id"`
	CustomerName    string `json:"customerName"`
	CustomerContact string `json:"customerContact"`
	Message         string `json:"message"`
	ProductID       ID     `json:"productId"`
	EntrepreneurID  ID     `json:"entrepreneurId"`
}

type UserProfile struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
	RoleGuest UserRole = "guest"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}

// InquiryDraft is the payload of a new inquiry. Inquiries are append-only.
type InquiryDraft struct {
	ProductID       *ID    `json:"productId"`
	EntrepreneurID  *ID    `json:"entrepreneurId"`
	CustomerName    string `json:"customerName" validate:"required"`
	CustomerContact string `json:"customerContact" validate:"required"`
	Message         string `json:"message" validate:"required"`
}

type RoleAssignment struct {
	Principal string   `json:"principal"`
	Role      UserRole `json:"role"`
}
