// Package identity holds agent identity and credential records. The
// messaging core consumes it only through resolve/exists lookups; the HTTP
// surface additionally uses it for registration and profile lookup.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/courierhq/courier/internal/models"
	"github.com/courierhq/courier/internal/store"
)

const (
	maxNameLen = 100
	maxBioLen  = 2000
)

var (
	// ErrNameTaken is returned when registering a display name that exists.
	ErrNameTaken = errors.New("identity: name already taken")
	// ErrInvalidName is returned for empty or unusable display names.
	ErrInvalidName = errors.New("identity: invalid name")
	// ErrInvalidBio is returned for oversized bios.
	ErrInvalidBio = errors.New("identity: invalid bio")
	// ErrUnauthenticated is returned when an API key resolves to no agent.
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	// ErrAgentNotFound is returned for lookups of absent agents.
	ErrAgentNotFound = errors.New("identity: agent not found")
)

// Service implements the identity store contract on the relational store.
type Service struct {
	db store.DataStore
}

// NewService creates an identity service backed by db.
func NewService(db store.DataStore) *Service {
	return &Service{db: db}
}

// Register creates a new agent with a freshly issued API key. The key is
// part of the returned agent and is not retrievable again.
func (s *Service) Register(ctx context.Context, name, bio string) (*models.Agent, error) {
	name = sanitizeName(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if len(bio) > maxBioLen {
		return nil, ErrInvalidBio
	}

	apiKey, err := NewAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	agent, err := s.db.CreateAgent(ctx, name, bio, apiKey)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return agent, nil
}

// ResolveByAPIKey maps a credential token to its agent.
func (s *Service) ResolveByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error) {
	if apiKey == "" {
		return nil, ErrUnauthenticated
	}
	agent, err := s.db.GetAgentByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("resolve api key: %w", err)
	}
	if agent == nil {
		return nil, ErrUnauthenticated
	}
	return agent, nil
}

// ResolveByName looks up an agent profile by display name.
func (s *Service) ResolveByName(ctx context.Context, name string) (*models.Agent, error) {
	agent, err := s.db.GetAgentByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve name: %w", err)
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

// Exists reports whether an agent with the given ID is registered.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	agent, err := s.db.GetAgentByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("lookup agent: %w", err)
	}
	return agent != nil, nil
}

// sanitizeName trims, strips control characters and caps the length. The
// cap cuts on a rune boundary so a multibyte name never truncates to
// invalid UTF-8.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > maxNameLen {
		cut := maxNameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	return name
}
