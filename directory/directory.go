// Package directory defines the read-only contract to the external student
// registry. The engine uses it to resolve pricing attributes and the
// receipt email address for an account owner.
package directory

import (
	"context"
	"fmt"

	"github.com/xraph/mensa/pricing"
)

// Owner is the directory record for one account owner.
type Owner struct {
	Ref       string        `json:"ref"`
	Name      string        `json:"name"`
	Level     pricing.Level `json:"level"`
	GroupName string        `json:"group_name"`
	Email     string        `json:"email"`
}

// Service looks up account owners by their external registry reference.
type Service interface {
	GetOwner(ctx context.Context, ref string) (*Owner, error)
}

// Static is an in-memory Service backed by a fixed owner map. Suitable for
// tests and single-school deployments with a roster file.
type Static struct {
	owners map[string]*Owner
}

// NewStatic builds a Static service from a roster.
func NewStatic(owners []*Owner) *Static {
	s := &Static{owners: make(map[string]*Owner, len(owners))}
	for _, o := range owners {
		s.owners[o.Ref] = o
	}

	return s
}

// GetOwner implements Service.
func (s *Static) GetOwner(_ context.Context, ref string) (*Owner, error) {
	o, ok := s.owners[ref]
	if !ok {
		return nil, fmt.Errorf("directory: owner %q not found", ref)
	}

	return o, nil
}

var _ Service = (*Static)(nil)
