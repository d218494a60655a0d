package models

import "errors"

// ErrIncompleteProduct is returned when parsed product details lack a name or a price.
var ErrIncompleteProduct = errors.New("product details need a name and a positive price")

// ProductDetails are the fields a seller supplies for a new product.
type ProductDetails struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
}

// Validate checks the fields required before an upload.
func (d ProductDetails) Validate() error {
	if d.Name == "" || d.Price <= 0 {
		return ErrIncompleteProduct
	}
	return nil
}

// ProductUploadResult is the vision service's report for one product upload.
type ProductUploadResult struct {
	Added      int      `json:"added"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}
