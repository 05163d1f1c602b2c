package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	EnvCommitterName  = "GIT_COMMITTER_NAME"
	EnvCommitterEmail = "GIT_COMMITTER_EMAIL"
)

// ErrIdentityNotFound is returned when no committer identity is available.
var ErrIdentityNotFound = errors.New("git committer identity not found")

// Identity is the name and email recorded on commits.
type Identity struct {
	Name  string
	Email string
}

// String renders the identity in the "Name <email>" form git expects for --author.
func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// IdentityProvider resolves the committer identity.
type IdentityProvider interface {
	Identity(ctx context.Context) (Identity, error)
}

// EnvIdentity reads the identity from GIT_COMMITTER_NAME and GIT_COMMITTER_EMAIL.
type EnvIdentity struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

func (p EnvIdentity) Identity(context.Context) (Identity, error) {
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	name, ok := lookup(EnvCommitterName)
	if !ok || strings.TrimSpace(name) == "" {
		return Identity{}, fmt.Errorf("%w: %s is not set", ErrIdentityNotFound, EnvCommitterName)
	}
	email, ok := lookup(EnvCommitterEmail)
	if !ok || strings.TrimSpace(email) == "" {
		return Identity{}, fmt.Errorf("%w: %s is not set", ErrIdentityNotFound, EnvCommitterEmail)
	}
	return Identity{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}, nil
}

// StaticIdentity always resolves to the same identity.
type StaticIdentity Identity

func (p StaticIdentity) Identity(context.Context) (Identity, error) {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Email) == "" {
		return Identity{}, fmt.Errorf("%w: name and email must both be configured", ErrIdentityNotFound)
	}
	return Identity(p), nil
}

// IdentityChain tries each provider in order and returns the first identity
// found. Errors other than ErrIdentityNotFound stop the search.
type IdentityChain []IdentityProvider

func (c IdentityChain) Identity(ctx context.Context) (Identity, error) {
	for _, provider := range c {
		id, err := provider.Identity(ctx)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrIdentityNotFound) {
			return Identity{}, err
		}
	}
	return Identity{}, ErrIdentityNotFound
}
