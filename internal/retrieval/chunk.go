// Package retrieval implements the scoped TF-IDF evidence index.
package retrieval

import (
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Chunk sources.
const (
	SourceUser     = "user"
	SourceInternal = "internal"
)

// ScopePublic is the scope assumed for chunks carrying no scope tags.
const ScopePublic = "public"

// Chunk is an immutable unit of ingested evidence.
type Chunk struct {
	ID       string   `json:"id"       validate:"required"`
	DocID    string   `json:"doc_id"   validate:"required"`
	Source   string   `json:"source"   validate:"required,oneof=user internal"`
	Filename string   `json:"filename" validate:"required"`
	Page     *int     `json:"page,omitempty" validate:"omitempty,gte=1"`
	Text     string   `json:"text"     validate:"required"`
	Scopes   []string `json:"scopes,omitempty" validate:"dive,required"`
}

// EffectiveScopes returns the chunk scopes, defaulting to public.
func (c Chunk) EffectiveScopes() []string {
	if len(c.Scopes) == 0 {
		return []string{ScopePublic}
	}
	return c.Scopes
}

// InScope reports whether the chunk is visible under the given filter.
// An empty filter admits only public chunks.
func (c Chunk) InScope(filter []string) bool {
	scopes := c.EffectiveScopes()
	if len(filter) == 0 {
		return slices.Contains(scopes, ScopePublic)
	}
	for _, s := range scopes {
		if slices.Contains(filter, s) {
			return true
		}
	}
	return false
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the chunk's required fields.
func (c Chunk) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid chunk %q: %w", c.ID, err)
	}
	return nil
}
