package invocation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

func TestParseRegistryConfig(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		expectError bool
		serialized  string
	}{
		{name: "empty", raw: "", serialized: "{}"},
		{name: "json", raw: `{"url": "https://cdn.example.com/providers", "verifyConfig": {"nopVerify": true}}`,
			serialized: `{"url":"https://cdn.example.com/providers","verifyConfig":{"nopVerify":true}}`},
		{name: "yaml", raw: "url: file:///srv/registry\nlocalDocRoot: /srv/registry\nsrcPrefix: src\n",
			serialized: `{"url":"file:///srv/registry","srcPrefix":"src","localDocRoot":"/srv/registry"}`},
		{name: "unknown field", raw: `{"uri": "https://example.com"}`, expectError: true},
		{name: "bad scheme", raw: `{"url": "s3://bucket"}`, expectError: true},
		{name: "garbage", raw: `{"url": [`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseRegistryConfig(tt.raw)
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, types.IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			s, err := cfg.Serialize()
			require.NoError(t, err)
			assert.Equal(t, tt.serialized, s)
		})
	}
}

func TestLoadRegistryConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://localhost:8080/registry\nallowSrcDownload: true\n"), 0644))

	cfg, err := LoadRegistryConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/registry", cfg.URL)
	assert.True(t, cfg.AllowSrcDownload)

	_, err = LoadRegistryConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, types.IsConfigurationError(err))
}

func TestNewLocalRegistryConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewLocalRegistryConfig(dir, true)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.True(t, strings.HasPrefix(cfg.URL, "file://"))
	assert.Equal(t, filepath.ToSlash(dir), cfg.LocalDocRoot)
	require.NotNil(t, cfg.VerifyConfig)
	assert.True(t, cfg.VerifyConfig.NopVerify)
}

func TestNilRegistrySerializesEmpty(t *testing.T) {
	var cfg *RegistryConfig
	s, err := cfg.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "{}", s)
}
