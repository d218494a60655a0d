package flow

import (
	"strconv"

	"github.com/commercebridge/commercebridge/internal/models"
)

// catalog is the featured product list shown while browsing.
var catalog = []models.Product{
	{ID: "1", Name: "Fashion & Clothing", Price: 25},
	{ID: "2", Name: "Electronics", Price: 120},
	{ID: "3", Name: "Home & Garden", Price: 45},
	{ID: "4", Name: "Beauty & Health", Price: 30},
	{ID: "5", Name: "Sports & Outdoors", Price: 60},
}

// Catalog returns a copy of the featured products.
func Catalog() []models.Product {
	return append([]models.Product(nil), catalog...)
}

// findProduct looks up a product by its menu number.
func findProduct(text string) (models.Product, bool) {
	n, err := strconv.Atoi(normalizeText(text))
	if err != nil {
		return models.Product{}, false
	}
	id := strconv.Itoa(n)
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}
