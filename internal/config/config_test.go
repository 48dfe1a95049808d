package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"TRAVIS_BUILD_DIR": "/src/agent",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/src/agent/embedded", cfg.IntegrationsDir)
	assert.Equal(t, DefaultCacheBucket, cfg.Cache.Bucket)
	assert.Equal(t, DefaultCacheRegion, cfg.Cache.Region)
	assert.Equal(t, DefaultCacheBranch, cfg.Cache.Branch)
	assert.Equal(t, "https", cfg.Cache.Scheme)
	assert.Positive(t, cfg.Concurrency)
	assert.False(t, cfg.SkipCleanup)
	assert.False(t, cfg.IsPullRequest())
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"TRAVIS_BUILD_DIR":      "/src/agent",
		"INTEGRATIONS_DIR":      "/opt/integrations",
		"VOLATILE_DIR":          "/tmp/volatile",
		"FLAVOR_VERSION":        "2.2.0",
		"TRAVIS":                "true",
		"TRAVIS_EVENT_TYPE":     "pull_request",
		"SKIP_CLEANUP":          "1",
		"CONCURRENCY":           "4",
		"AWS_ACCESS_KEY_ID":     "AKID",
		"AWS_SECRET_ACCESS_KEY": "secret",
		"DEBUG_CACHE":           "1",
		"CACHE_SCHEME":          "http",
		"CACHE_ENDPOINT":        "minio:9000",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/opt/integrations", cfg.IntegrationsDir)
	assert.Equal(t, "/tmp/volatile", cfg.VolatileDir)
	assert.Equal(t, "2.2.0", cfg.FlavorVersion)
	assert.True(t, cfg.IsPullRequest())
	assert.True(t, cfg.SkipCleanup)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "AKID", cfg.Cache.AccessKeyID)
	assert.True(t, cfg.Cache.Debug)
	assert.Equal(t, "http", cfg.Cache.Scheme)
	assert.Equal(t, "minio:9000", cfg.Cache.Endpoint)
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	_, err := Load(envMap(map[string]string{
		"TRAVIS_BUILD_DIR": "/src",
		"CONCURRENCY":      "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONCURRENCY")
}

func TestEnviron_ExportsResolvedPaths(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"TRAVIS_BUILD_DIR": "/src/agent",
		"VOLATILE_DIR":     "/tmp/v",
	}))
	require.NoError(t, err)

	var found int
	for _, kv := range cfg.Environ() {
		if strings.HasPrefix(kv, "VOLATILE_DIR=") {
			found++
			assert.Equal(t, "VOLATILE_DIR=/tmp/v", kv)
		}
	}
	assert.Equal(t, 1, found)
}
