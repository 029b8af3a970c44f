package domain

import "time"

// Role constants.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is an account with its profile fields.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city,omitempty"`
	Region       string    `json:"region,omitempty"`
	ZipCode      string    `json:"zip_code,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ShippingDefaults pre-fills a shipping form from the profile.
func (u *User) ShippingDefaults() ShippingAddress {
	return ShippingAddress{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Address:   u.Address,
		City:      u.City,
		Region:    u.Region,
		ZipCode:   u.ZipCode,
	}
}
