package oauth

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/authsim-dev/authsim/api"
)

// Manager holds several named provider instances and offers a one-call
// authorization-code flow for test setup. It adds no protocol logic of its
// own.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]*Provider
	log       zerolog.Logger
}

// NewManager creates an empty provider manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		providers: make(map[string]*Provider),
		log:       log,
	}
}

// Register adds a provider under its name, replacing any previous instance.
func (m *Manager) Register(p *Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
}

// Provider returns a registered provider by name.
func (m *Manager) Provider(name string) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", name)
	}
	return p, nil
}

// Close closes every registered provider.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		p.Close()
	}
}

// FlowResult captures every artifact of a completed authorization-code flow.
type FlowResult struct {
	AuthorizeURL string
	Code         string
	State        string
	Tokens       *api.TokenResponse
	UserInfo     map[string]any
}

// RunAuthorizationCodeFlow drives authorize → user consent → code exchange →
// user-info against one provider for an already-registered user.
func (m *Manager) RunAuthorizationCodeFlow(ctx context.Context, providerName, userID string) (*FlowResult, error) {
	p, err := m.Provider(providerName)
	if err != nil {
		return nil, err
	}

	authz, err := p.Authorize(AuthorizeOptions{})
	if err != nil {
		return nil, err
	}

	grant, err := p.SimulateUserAuthorization(userID, AuthorizeOptions{State: authz.State})
	if err != nil {
		return nil, err
	}

	tokens, err := p.ExchangeCodeForToken(ctx, grant.Code, ExchangeOptions{})
	if err != nil {
		return nil, err
	}

	info, err := p.GetUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("provider", providerName).
		Str("user_id", userID).
		Msg("authorization code flow completed")

	return &FlowResult{
		AuthorizeURL: authz.URL,
		Code:         grant.Code,
		State:        grant.State,
		Tokens:       tokens,
		UserInfo:     info,
	}, nil
}
