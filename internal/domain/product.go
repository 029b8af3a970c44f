package domain

import "time"

// Product is a coffee sold by the roastery. Prices are whole CLP.
type Product struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Origin    string    `json:"origin"`
	Price     int64     `json:"price"`
	Tags      []string  `json:"tags"`
	ImageURL  string    `json:"image_url"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
