package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codetrawl/internal/config"
)

func TestNewGitHubClient(t *testing.T) {
	client, err := NewGitHubClient(context.Background(), config.Secret("ghp_token"))
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewGitHubClientNoToken(t *testing.T) {
	_, err := NewGitHubClient(context.Background(), config.Secret(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token not set")
}
