package invocation

import "path/filepath"

// Command-line contract with the CLI under test. These are fixed strings.
const (
	ExecCommand    = "exec"
	AuthFlag       = "--auth"
	RegistryFlag   = "--registry"
	SQLBackendFlag = "--sqlBackend"
)

// Secrets are handed to the CLI under test through these environment variables
const (
	EnvOktaSecret   = "OKTA_SECRET_KEY"
	EnvGitHubSecret = "GITHUB_SECRET_KEY"
	EnvK8sSecret    = "K8S_SECRET_KEY"
)

// dbEngine values understood inside the backend configuration document
const (
	DBEngineSQLiteEmbedded = "sqlite3_embedded"
	DBEnginePostgresTCP    = "postgres_tcp"
)

// Auxiliary SQL client executables and their defaults
const (
	EnvPsqlExe       = "PSQL_EXE"
	EnvSqliteExe     = "SQLITE_EXE"
	DefaultPsqlExe   = "psql"
	DefaultSqliteExe = "sqlite3"
)

// ArtifactCacheDir is where embedded-backend state lives, relative to the artifact root
var ArtifactCacheDir = filepath.Join("test", ".stackql")

// reservedFlags cannot be supplied as extra flags because the builder owns them
var reservedFlags = map[string]bool{
	AuthFlag[2:]:       true,
	RegistryFlag[2:]:   true,
	SQLBackendFlag[2:]: true,
}
