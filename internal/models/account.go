package models

import "time"

// UserType is the role a WhatsApp user plays in the marketplace.
type UserType string

const (
	UserTypeCustomer UserType = "customer"
	UserTypeSeller   UserType = "seller"
	UserTypeUnknown  UserType = "unknown"
)

// IsValidUserType reports whether t is a role an account can hold.
func IsValidUserType(t UserType) bool {
	return t == UserTypeCustomer || t == UserTypeSeller
}

// Account is the persisted user record created out-of-band through the web form.
type Account struct {
	ID               string    `json:"id"`
	PhoneNumber      string    `json:"phone_number"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	UserType         UserType  `json:"user_type"`
	StoreName        string    `json:"store_name,omitempty"`
	StoreDescription string    `json:"store_description,omitempty"`
	StoreAddress     string    `json:"store_address,omitempty"`
	StoreCategories  []string  `json:"store_categories,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateAccountRequest is the payload accepted by POST /api/users.
type CreateAccountRequest struct {
	PhoneNumber      string   `json:"phoneNumber" validate:"required,min=6,max=32"`
	Name             string   `json:"name" validate:"required,max=120"`
	Email            string   `json:"email" validate:"required,email"`
	UserType         UserType `json:"userType" validate:"omitempty,oneof=customer seller"`
	StoreName        string   `json:"storeName,omitempty" validate:"required_if=UserType seller,max=120"`
	StoreDescription string   `json:"storeDescription,omitempty" validate:"max=1000"`
	StoreAddress     string   `json:"storeAddress,omitempty" validate:"max=300"`
	StoreCategories  []string `json:"storeCategories,omitempty" validate:"required_if=UserType seller,dive,required"`
}

// StoreCategories is the predefined list offered to sellers on sign-up.
var StoreCategories = []string{
	"Fashion & Clothing",
	"Electronics",
	"Home & Garden",
	"Beauty & Health",
	"Sports & Outdoors",
	"Food & Groceries",
	"Books & Stationery",
	"Toys & Games",
	"Automotive",
	"Arts & Crafts",
}
