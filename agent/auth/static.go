package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

// StaticProvider always answers with the same identity. An empty user id
// behaves as signed out.
type StaticProvider struct {
	UserID string
}

var _ contract.IdentityProvider = StaticProvider{}

func (p StaticProvider) Identity(context.Context) (contract.Identity, error) {
	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		return contract.Identity{}, fmt.Errorf("%w: no local user", contract.ErrNotAuthenticated)
	}
	return contract.Identity{UserID: userID}, nil
}
