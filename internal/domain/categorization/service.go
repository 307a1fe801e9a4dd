package categorization

import (
	"context"
	"fmt"
)

// FallbackCategoryID is used at commit time when no category named
// FallbackCategoryName exists.
const FallbackCategoryID int64 = 1

// Store is the read-only category store the service depends on.
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
}

// Service builds category matchers from the live category list.
type Service struct {
	store   Store
	aliases AliasTable
}

// NewService creates a new categorization service. A nil alias table selects
// DefaultAliases.
func NewService(store Store, aliases AliasTable) *Service {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Service{store: store, aliases: aliases}
}

// Aliases returns the configured alias table.
func (s *Service) Aliases() AliasTable {
	return s.aliases
}

// ListCategories returns the current category list.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return categories, nil
}

// Matcher loads the current categories and returns a matcher over them.
func (s *Service) Matcher(ctx context.Context) (*Matcher, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return NewMatcher(categories, s.aliases), nil
}

// DefaultCategoryID returns the id of the fallback category, or
// FallbackCategoryID when the store has none by that name.
func (s *Service) DefaultCategoryID(ctx context.Context) (int64, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range categories {
		if c.Name == FallbackCategoryName {
			return c.ID, nil
		}
	}
	return FallbackCategoryID, nil
}
