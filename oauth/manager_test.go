package oauth_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authsim-dev/authsim/oauth"
)

func TestManagerRunAuthorizationCodeFlow(t *testing.T) {
	manager := oauth.NewManager(zerolog.Nop())
	t.Cleanup(manager.Close)

	p := newGoogleProvider(t, newTestClock())
	registerTestUser(t, p)
	manager.Register(p)

	result, err := manager.RunAuthorizationCodeFlow(context.Background(), "google", "12345")
	require.NoError(t, err)

	assert.Contains(t, result.AuthorizeURL, "client_id=test-client")
	assert.NotEmpty(t, result.Code)
	assert.NotEmpty(t, result.State)
	assert.Equal(t, "Bearer", result.Tokens.TokenType)
	assert.Equal(t, 3600, result.Tokens.ExpiresIn)
	assert.NotEmpty(t, result.Tokens.IDToken)
	assert.Equal(t, "user@test.com", result.UserInfo["email"])
}

func TestManagerUnknownProvider(t *testing.T) {
	manager := oauth.NewManager(zerolog.Nop())

	_, err := manager.Provider("nope")
	assert.Error(t, err)

	_, err = manager.RunAuthorizationCodeFlow(context.Background(), "nope", "12345")
	assert.Error(t, err)
}
