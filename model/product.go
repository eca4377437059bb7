// Package model - Product defines the owning product context of a repository.
package model

import (
	"time"

	"github.com/ortelius/pdvd-enricher/util"
)

// Lifecycle values stored on a product.
const (
	LifecycleConstruction = "construction"
	LifecycleProduction   = "production"
	LifecycleRetirement   = "retirement"
)

// ProductType groups products by owner namespace.
type ProductType struct {
	Key             string `json:"_key,omitempty"`
	ObjType         string `json:"objtype,omitempty"`
	Name            string `json:"name"`
	CriticalProduct bool   `json:"critical_product"`
}

// Product is the owning context of a repository and the root of the engagement hierarchy.
type Product struct {
	Key                 string    `json:"_key,omitempty"`
	ObjType             string    `json:"objtype,omitempty"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	ProductTypeKey      string    `json:"product_type_key,omitempty"`
	BusinessCriticality string    `json:"business_criticality,omitempty"`
	Lifecycle           string    `json:"lifecycle,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewProductType creates a non-critical product type for an owner namespace.
func NewProductType(name string) *ProductType {
	return &ProductType{
		Key:     util.SanitizeKey(name),
		ObjType: "ProductType",
		Name:    name,
	}
}

// NewProduct creates a product named after the repository it owns.
func NewProduct(name, productTypeKey string) *Product {
	return &Product{
		Key:            util.SanitizeKey(name),
		ObjType:        "Product",
		Name:           name,
		ProductTypeKey: productTypeKey,
		Lifecycle:      LifecycleProduction,
		CreatedAt:      time.Now().UTC(),
	}
}
