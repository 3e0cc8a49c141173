// internal/catalog/domain.go
package catalog

// AddItemRequest registers a physical copy. New items start available with an empty log.
type AddItemRequest struct {
	Barcode string `json:"barcode" validate:"required,max=64"`
	Title   string `json:"title" validate:"required,max=500"`
}

// ListFilter narrows ListItems.
type ListFilter struct {
	CheckedOutOnly bool
}
