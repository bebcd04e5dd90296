package api

import (
	"testing"

	"decisionlog-backend/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlackSecretRequiredInProduction(t *testing.T) {
	err := checkSlackSecret(&config.Config{Environment: "production"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_SIGNING_SECRET")

	assert.NoError(t, checkSlackSecret(&config.Config{Environment: "production", SlackSigningSecret: "s"}, zap.NewNop()))
}

func TestSlackSecretMissingWarnsInDevelopment(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	require.NoError(t, checkSlackSecret(&config.Config{Environment: "development"}, zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessageSnippet("SLACK_SIGNING_SECRET").Len())
}
