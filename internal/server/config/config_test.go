package config

import (
	"strings"
	"testing"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.JWTSecret = "secret"
	cfg.EncryptionKey = strings.Repeat("ab", 32)
	return cfg
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.JWTSecret = ""
	assert.ErrorIs(t, cfg.Validate(), common.ErrConfiguration)

	cfg = validConfig()
	cfg.EncryptionKey = ""
	assert.ErrorIs(t, cfg.Validate(), common.ErrConfiguration)

	cfg = validConfig()
	cfg.EncryptionKey = "zz"
	assert.ErrorIs(t, cfg.Validate(), common.ErrConfiguration)

	cfg = validConfig()
	cfg.EncryptionKey = "abcd" // valid hex, too short
	assert.ErrorIs(t, cfg.Validate(), common.ErrConfiguration)

	cfg = validConfig()
	cfg.DatabaseDSN = ""
	assert.ErrorIs(t, cfg.Validate(), common.ErrConfiguration)
}

func TestEncryptionSecret(t *testing.T) {
	cfg := validConfig()
	secret, err := cfg.EncryptionSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}
