package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"budgetbee/internal/core"
	"budgetbee/internal/storage"
)

var ErrCategoryTypeChange = errors.New("category type cannot change")

type CategoryService struct {
	ledger Ledger
}

func NewCategoryService(ledger Ledger) *CategoryService {
	return &CategoryService{ledger: ledger}
}

func (s *CategoryService) List(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	return s.ledger.ListCategories(ctx, typ)
}

// Create stores c under an identifier derived from its name. A random
// suffix is appended when the slug is taken.
func (s *CategoryService) Create(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	id := core.CategoryID(slugify(c.Name))
	if id == "" {
		id = core.CategoryID(uuid.NewString())
	} else if _, err := s.ledger.GetCategory(ctx, id); err == nil {
		id = core.CategoryID(fmt.Sprintf("%s-%s", id, uuid.NewString()[:8]))
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.Category{}, err
	}
	c.ID = id

	if err := s.ledger.CreateCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

// Update changes name, icon and color of an existing category. Empty icon
// and color keep the stored values; the type cannot change.
func (s *CategoryService) Update(ctx context.Context, c core.Category) (core.Category, error) {
	cur, err := s.ledger.GetCategory(ctx, c.ID)
	if err != nil {
		return core.Category{}, err
	}
	if c.Type != "" && c.Type != cur.Type {
		return core.Category{}, ErrCategoryTypeChange
	}
	cur.Name = strings.TrimSpace(c.Name)
	if c.Icon != "" {
		cur.Icon = c.Icon
	}
	if c.Color != "" {
		cur.Color = c.Color
	}
	if err := cur.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.ledger.UpdateCategory(ctx, cur); err != nil {
		return core.Category{}, err
	}
	return cur, nil
}

// Delete removes a category without transactions, together with its
// budgets.
func (s *CategoryService) Delete(ctx context.Context, id core.CategoryID) error {
	return s.ledger.DeleteCategory(ctx, id)
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
