// Package suite loads suite files: the list of actions the CLI runs in one go.
package suite

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

const envRefPrefix = "env:"

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// File is the on-disk suite layout
type File struct {
	Name           string                     `yaml:"name"`
	Executable     string                     `yaml:"executable"`
	Registry       *invocation.RegistryConfig `yaml:"registry"`
	RegistryFile   string                     `yaml:"registry_file"`
	RegistryDir    string                     `yaml:"registry_dir"`
	Auth           string                     `yaml:"auth"`
	SQLBackendCfg  string                     `yaml:"sql_backend_cfg"`
	Secrets        SecretsConfig              `yaml:"secrets"`
	Env            map[string]string          `yaml:"env"`
	Defaults       map[string]string          `yaml:"defaults"`
	WaitForBackend string                     `yaml:"wait_for_backend"`
	Actions        []ActionConfig             `yaml:"actions"`
	BackendQueries []BackendQueryConfig       `yaml:"backend_queries"`
}

// SecretsConfig holds secret values. A value that is exactly ${VAR} or env:VAR
// is read from the environment; anything else is used byte for byte.
type SecretsConfig struct {
	Okta   string `yaml:"okta"`
	GitHub string `yaml:"github"`
	K8s    string `yaml:"k8s"`
}

// ActionConfig describes one CLI invocation and its expected streams.
// Executable, Auth and SQLBackendCfg override the suite-level values when set.
type ActionConfig struct {
	Name           string            `yaml:"name"`
	Query          string            `yaml:"query"`
	ExpectedStdout string            `yaml:"expected_stdout"`
	ExpectedStderr string            `yaml:"expected_stderr"`
	Args           []string          `yaml:"args"`
	Flags          map[string]string `yaml:"flags"`
	Options        map[string]string `yaml:"options"`
	Executable     string            `yaml:"executable"`
	Auth           *string           `yaml:"auth"`
	SQLBackendCfg  *string           `yaml:"sql_backend_cfg"`
}

// BackendQueryConfig runs SQL directly against the backend.
// Target is a DSN for postgres_tcp or a database file path for sqlite_embedded.
type BackendQueryConfig struct {
	Name     string            `yaml:"name"`
	Target   string            `yaml:"target"`
	Query    string            `yaml:"query"`
	Expected string            `yaml:"expected"`
	Options  map[string]string `yaml:"options"`
}

// Suite is a loaded and validated suite file
type Suite struct {
	File
	Path string
}

// Load reads, resolves and validates the suite file at path
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file %s: %w", path, err)
	}
	s, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("invalid suite file %s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Parse decodes a suite document. Relative paths resolve against baseDir.
func Parse(data []byte, baseDir string) (*Suite, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, types.NewConfigurationError("suite", fmt.Errorf("failed to parse suite: %w", err))
	}

	var err error
	for _, ref := range []*string{&f.Secrets.Okta, &f.Secrets.GitHub, &f.Secrets.K8s, &f.WaitForBackend} {
		if *ref, err = resolveRef(*ref); err != nil {
			return nil, err
		}
	}
	for k, v := range f.Env {
		if f.Env[k], err = resolveRef(v); err != nil {
			return nil, err
		}
	}

	f.Executable = resolvePath(baseDir, f.Executable)
	for i := range f.Actions {
		f.Actions[i].Executable = resolvePath(baseDir, f.Actions[i].Executable)
	}
	for i := range f.BackendQueries {
		if f.BackendQueries[i].Target, err = resolveRef(f.BackendQueries[i].Target); err != nil {
			return nil, err
		}
	}

	if err := resolveRegistry(&f, baseDir); err != nil {
		return nil, err
	}

	s := &Suite{File: f}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the suite for structural errors
func (s *Suite) Validate() error {
	if len(s.Actions) == 0 && len(s.BackendQueries) == 0 {
		return types.NewConfigurationError("actions", errors.New("suite defines no actions"))
	}
	if err := s.Registry.Validate(); err != nil {
		return err
	}
	if _, err := types.ParseActionOptions(s.Defaults); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	seen := map[string]bool{}
	checkName := func(name string) error {
		if strings.TrimSpace(name) == "" {
			return types.NewConfigurationError("name", errors.New("every action needs a name"))
		}
		if seen[name] {
			return types.NewConfigurationError("name", fmt.Errorf("duplicate action name %q", name))
		}
		seen[name] = true
		return nil
	}

	for _, a := range s.Actions {
		if err := checkName(a.Name); err != nil {
			return err
		}
		if strings.TrimSpace(a.Query) == "" {
			return types.NewConfigurationError("query", fmt.Errorf("action %q has no query", a.Name))
		}
		if a.Executable == "" && s.Executable == "" {
			return types.NewConfigurationError("executable", fmt.Errorf("action %q has no executable and the suite sets none", a.Name))
		}
		if _, err := s.Options(a.Options); err != nil {
			return fmt.Errorf("action %q: %w", a.Name, err)
		}
	}
	for _, q := range s.BackendQueries {
		if err := checkName(q.Name); err != nil {
			return err
		}
		if strings.TrimSpace(q.Query) == "" {
			return types.NewConfigurationError("query", fmt.Errorf("backend query %q has no query", q.Name))
		}
		if strings.TrimSpace(q.Target) == "" {
			return types.NewConfigurationError("target", fmt.Errorf("backend query %q has no target", q.Name))
		}
		if _, err := s.Options(q.Options); err != nil {
			return fmt.Errorf("backend query %q: %w", q.Name, err)
		}
	}
	return nil
}

// Options overlays per-action options on the suite defaults
func (s *Suite) Options(raw map[string]string) (types.ActionOptions, error) {
	opts, err := types.ParseActionOptions(s.Defaults)
	if err != nil {
		return opts, err
	}
	return opts.Merge(raw)
}

// SecretValues returns the resolved secret values
func (s *Suite) SecretValues() types.Secrets {
	return types.Secrets{Okta: s.Secrets.Okta, GitHub: s.Secrets.GitHub, K8s: s.Secrets.K8s}
}

// resolveRegistry fills f.Registry from registry_file or registry_dir.
// At most one of registry, registry_file and registry_dir may be set.
func resolveRegistry(f *File, baseDir string) error {
	set := 0
	for _, ok := range []bool{f.Registry != nil, f.RegistryFile != "", f.RegistryDir != ""} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return types.NewConfigurationError("registry", errors.New("registry, registry_file and registry_dir are mutually exclusive"))
	}

	switch {
	case f.RegistryFile != "":
		reg, err := invocation.LoadRegistryConfig(resolvePath(baseDir, f.RegistryFile))
		if err != nil {
			return err
		}
		f.Registry = reg
	case f.RegistryDir != "":
		dir := f.RegistryDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		// local document trees are unsigned
		reg, err := invocation.NewLocalRegistryConfig(dir, true)
		if err != nil {
			return types.NewConfigurationError("registry_dir", err)
		}
		f.Registry = reg
	}
	return nil
}

// resolveRef returns the environment value a reference names, or v unchanged.
// Only whole-value references count, so a literal like "pa$$w0rd" survives.
func resolveRef(v string) (string, error) {
	var name string
	switch {
	case strings.HasPrefix(v, envRefPrefix):
		name = strings.TrimPrefix(v, envRefPrefix)
	case strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}"):
		name = v[2 : len(v)-1]
	default:
		return v, nil
	}
	if !envNamePattern.MatchString(name) {
		return v, nil
	}
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", types.NewConfigurationError("env", fmt.Errorf("environment variable %s is not set", name))
	}
	return val, nil
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || !strings.ContainsAny(p, `/\`) {
		return p
	}
	joined := filepath.Join(baseDir, p)
	if abs, err := filepath.Abs(joined); err == nil {
		return abs
	}
	return joined
}
