package invocation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// RegistryConfig tells the CLI under test where and how to resolve provider documents.
// It is passed through to the CLI as a JSON document.
type RegistryConfig struct {
	URL              string        `json:"url,omitempty" yaml:"url,omitempty"`
	SrcPrefix        *string       `json:"srcPrefix,omitempty" yaml:"srcPrefix,omitempty"`
	DistPrefix       *string       `json:"distPrefix,omitempty" yaml:"distPrefix,omitempty"`
	AllowSrcDownload bool          `json:"allowSrcDownload,omitempty" yaml:"allowSrcDownload,omitempty"`
	LocalDocRoot     string        `json:"localDocRoot,omitempty" yaml:"localDocRoot,omitempty"`
	VerifyConfig     *VerifyConfig `json:"verifyConfig,omitempty" yaml:"verifyConfig,omitempty"`
}

// VerifyConfig controls signature verification of provider documents
type VerifyConfig struct {
	NopVerify bool `json:"nopVerify" yaml:"nopVerify"`
}

var allowedRegistrySchemes = map[string]bool{
	"file":  true,
	"http":  true,
	"https": true,
}

// NewLocalRegistryConfig points the registry at a directory on disk.
// Signature verification is disabled when nopVerify is set.
func NewLocalRegistryConfig(dir string, nopVerify bool) (*RegistryConfig, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for registry '%s': %w", dir, err)
	}
	abs = filepath.ToSlash(abs)
	return &RegistryConfig{
		URL:          "file://" + abs,
		LocalDocRoot: abs,
		VerifyConfig: &VerifyConfig{NopVerify: nopVerify},
	}, nil
}

// ParseRegistryConfig decodes a registry configuration from JSON or YAML text.
// Unknown fields make the document invalid.
func ParseRegistryConfig(raw string) (*RegistryConfig, error) {
	cfg := &RegistryConfig{}
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewBufferString(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, types.NewConfigurationError("registry", fmt.Errorf("unparseable registry config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRegistryConfig reads a registry configuration file
func LoadRegistryConfig(path string) (*RegistryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewConfigurationError("registry", fmt.Errorf("failed to read registry config %s: %w", path, err))
	}
	return ParseRegistryConfig(string(data))
}

// Validate checks that the configuration is structurally sound
func (c *RegistryConfig) Validate() error {
	if c == nil || c.URL == "" {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return types.NewConfigurationError("registry.url", err)
	}
	if !allowedRegistrySchemes[u.Scheme] {
		return types.NewConfigurationError("registry.url",
			fmt.Errorf("unsupported scheme %q in %q, must be file, http or https", u.Scheme, c.URL))
	}
	return nil
}

// Serialize renders the configuration as the JSON document the CLI expects.
// A nil configuration serializes to an empty object.
func (c *RegistryConfig) Serialize() (string, error) {
	if c == nil {
		return "{}", nil
	}
	if err := c.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", types.NewConfigurationError("registry", err)
	}
	return string(b), nil
}
