// Package seed loads operator data the public API cannot create: admin
// accounts and catalog entries.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/pkg/database"
	"github.com/utafrali/roastery/pkg/slug"
	"github.com/utafrali/roastery/pkg/validator"
)

const bcryptCost = 12

// AdminInput describes the account to create or promote.
type AdminInput struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8"`
	FirstName string
	LastName  string
}

// ProductInput is one catalog entry in a seed file. Slug defaults to the
// slugified name.
type ProductInput struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name" validate:"required"`
	Origin   string   `json:"origin"`
	Price    int64    `json:"price" validate:"gt=0"`
	Tags     []string `json:"tags"`
	ImageURL string   `json:"image_url"`
}

// Seeder writes seed data straight to PostgreSQL.
type Seeder struct {
	db     database.DBTX
	logger *slog.Logger
}

// New creates a Seeder.
func New(db database.DBTX, logger *slog.Logger) *Seeder {
	return &Seeder{db: db, logger: logger}
}

// Admin creates an admin account, or promotes and resets the password of
// an existing account with the same email. It returns the user id.
func (s *Seeder) Admin(ctx context.Context, in AdminInput) (string, error) {
	if err := validator.Validate(in); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	var id string
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ((LOWER(email))) DO UPDATE
		SET role = EXCLUDED.role, password_hash = EXCLUDED.password_hash, updated_at = NOW()
		RETURNING id`,
		uuid.New().String(), strings.ToLower(strings.TrimSpace(in.Email)), string(hash),
		in.FirstName, in.LastName, domain.RoleAdmin,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert admin: %w", err)
	}

	s.logger.Info("admin account ready", slog.String("user_id", id))
	return id, nil
}

// ReadProducts decodes a JSON array of products.
func ReadProducts(r io.Reader) ([]ProductInput, error) {
	var products []ProductInput
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// Products upserts catalog entries by slug and returns how many were written.
func (s *Seeder) Products(ctx context.Context, products []ProductInput) (int, error) {
	for i, p := range products {
		if err := validator.Validate(p); err != nil {
			return i, fmt.Errorf("product %d: %w", i, err)
		}
		if p.Slug == "" {
			p.Slug = slug.Generate(p.Name)
		}
		if !slug.Valid(p.Slug) {
			return i, fmt.Errorf("product %d: invalid slug %q", i, p.Slug)
		}
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}

		_, err := s.db.Exec(ctx, `
			INSERT INTO products (id, slug, name, origin, price, tags, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (slug) DO UPDATE
			SET name = EXCLUDED.name, origin = EXCLUDED.origin, price = EXCLUDED.price,
			    tags = EXCLUDED.tags, image_url = EXCLUDED.image_url, active = TRUE, updated_at = NOW()`,
			uuid.New().String(), p.Slug, p.Name, p.Origin, p.Price, tags, p.ImageURL,
		)
		if err != nil {
			return i, fmt.Errorf("upsert product %s: %w", p.Slug, err)
		}
		s.logger.Debug("product seeded", slog.String("slug", p.Slug))
	}

	s.logger.Info("catalog seeded", slog.Int("products", len(products)))
	return len(products), nil
}
