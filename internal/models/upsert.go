package models

type UpsertKind int

const (
	UpsertCreate UpsertKind = iota
	UpsertUpdate
)

func (k UpsertKind) String() string {
	if k == UpsertUpdate {
		return "update"
	}
	return "create"
}

// ProductTarget selects whether a product write creates a new listing or
// updates an existing one. The zero value creates.
type ProductTarget struct {
	kind UpsertKind
	id   ID
}

func CreateProduct() ProductTarget {
	return ProductTarget{kind: UpsertCreate}
}

func UpdateProduct(id ID) ProductTarget {
	return ProductTarget{kind: UpsertUpdate, id: id}
}

func (t ProductTarget) Kind() UpsertKind { return t.kind }

// ID returns the product being updated; ok is false for creates.
func (t ProductTarget) ID() (ID, bool) {
	return t.id, t.kind == UpsertUpdate
}

// ProductUpsert is the wire form of a product write. ProductID is present only
// for updates.
type ProductUpsert struct {
	ProductID      *ID    `json:"productId,omitempty"`
	EntrepreneurID ID     `json:"entrepreneurId"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Price          Price  `json:"price"`
	CategoryID     ID     `json:"categoryId"`
}

func (u ProductUpsert) Target() ProductTarget {
	if u.ProductID == nil {
		return CreateProduct()
	}
	return UpdateProduct(*u.ProductID)
}

// ProfileUpsert writes the caller's own entrepreneur profile. The owning
// principal is never part of the payload: the service takes it from the caller.
type ProfileUpsert struct {
	BusinessName string `json:"businessName" validate:"required"`
	Contact      string `json:"contact" validate:"required"`
	CategoryID   *ID    `json:"categoryId" validate:"required"`
	Description  string `json:"description" validate:"required"`
}
