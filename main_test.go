package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaults(t *testing.T) {
	env, err := loadEnv(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, 8080, env.Port)
	assert.Equal(t, []string{"*"}, env.OriginPatterns)
	assert.Equal(t, 64, env.SendBuffer)
	assert.False(t, env.Debug)
	assert.NotEmpty(t, env.InstanceID, "instance id should be generated")
	assert.Empty(t, env.AdminPublicKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	env, err := loadEnv(context.Background(), envconfig.MapLookuper(map[string]string{
		"PORT":             "9090",
		"INSTANCE_ID":      "instance-a",
		"DEBUG":            "true",
		"ORIGIN_PATTERNS":  "example.com,*.example.com",
		"ADMIN_PUBLIC_KEY": base64.StdEncoding.EncodeToString(publicKey),
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, env.Port)
	assert.Equal(t, "instance-a", env.InstanceID)
	assert.True(t, env.Debug)
	assert.Equal(t, []string{"example.com", "*.example.com"}, env.OriginPatterns)
	assert.Equal(t, []byte(publicKey), env.AdminPublicKey.Bytes())
}

func TestLoadEnvDomainRequiresRedis(t *testing.T) {
	_, err := loadEnv(context.Background(), envconfig.MapLookuper(map[string]string{
		"SERVICE_DOMAIN": "sync.example.com",
	}))
	assert.Error(t, err)
}
