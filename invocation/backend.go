package invocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// BackendConfig is the decoded backend configuration document
type BackendConfig struct {
	DBEngine string `json:"dbEngine"`
	DSN      string `json:"dsn,omitempty"`

	// extra keeps any additional keys so they survive canonicalization
	extra map[string]any
}

// IsEmpty reports whether no backend document was supplied
func (c *BackendConfig) IsEmpty() bool {
	return c == nil || (c.DBEngine == "" && c.DSN == "" && len(c.extra) == 0)
}

// Canonical renders the document with sorted keys so identical inputs yield identical argv
func (c *BackendConfig) Canonical() (string, error) {
	doc := make(map[string]any, len(c.extra)+2)
	for k, v := range c.extra {
		doc[k] = v
	}
	if c.DBEngine != "" {
		doc["dbEngine"] = c.DBEngine
	}
	if c.DSN != "" {
		doc["dsn"] = c.DSN
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseBackendConfig decodes and validates raw backend configuration for the given selector.
// The embedded backend accepts an empty document.
func ParseBackendConfig(backend types.SQLBackend, raw string) (*BackendConfig, error) {
	if !backend.IsValid() {
		return nil, types.NewConfigurationError("sql_backend", fmt.Errorf("unrecognized SQL backend %q", backend))
	}

	cfg := &BackendConfig{}
	if s := strings.TrimSpace(raw); s != "" {
		doc := map[string]any{}
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, types.NewConfigurationError("sql_backend_cfg", fmt.Errorf("backend config must be a JSON object: %w", err))
		}
		for k, v := range doc {
			switch k {
			case "dbEngine":
				s, ok := v.(string)
				if !ok {
					return nil, types.NewConfigurationError("sql_backend_cfg.dbEngine", errors.New("must be a string"))
				}
				cfg.DBEngine = s
			case "dsn":
				s, ok := v.(string)
				if !ok {
					return nil, types.NewConfigurationError("sql_backend_cfg.dsn", errors.New("must be a string"))
				}
				cfg.DSN = s
			default:
				if cfg.extra == nil {
					cfg.extra = map[string]any{}
				}
				cfg.extra[k] = v
			}
		}
	}

	switch backend {
	case types.SQLBackendEmbedded:
		if cfg.DBEngine != "" && cfg.DBEngine != DBEngineSQLiteEmbedded {
			return nil, types.NewConfigurationError("sql_backend_cfg.dbEngine",
				fmt.Errorf("%q does not match backend %s, expected %q", cfg.DBEngine, backend, DBEngineSQLiteEmbedded))
		}
		if cfg.DSN != "" {
			return nil, types.NewConfigurationError("sql_backend_cfg.dsn",
				fmt.Errorf("backend %s does not take a DSN", backend))
		}
	case types.SQLBackendNetwork:
		if cfg.DBEngine != DBEnginePostgresTCP {
			return nil, types.NewConfigurationError("sql_backend_cfg.dbEngine",
				fmt.Errorf("backend %s requires dbEngine %q, got %q", backend, DBEnginePostgresTCP, cfg.DBEngine))
		}
		if err := ValidateDSN(cfg.DSN); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ValidateDSN checks that dsn is a postgres connection string pgx can use
func ValidateDSN(dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return types.NewConfigurationError("sql_backend_cfg.dsn", errors.New("dsn is required"))
	}
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return types.NewConfigurationError("sql_backend_cfg.dsn", fmt.Errorf("invalid dsn %s: %w", MaskDSN(dsn), err))
	}
	return nil
}
