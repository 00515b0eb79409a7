package invocation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// DefaultConcurrencyLimit is the number of CLI processes allowed to run at once when unset
const DefaultConcurrencyLimit = 1

// BuilderConfig is the library-level configuration shared by every invocation
type BuilderConfig struct {
	Backend          types.SQLBackend
	Platform         types.ExecutionPlatform
	ConcurrencyLimit int
}

// Inputs are the per-action values an invocation is built from
type Inputs struct {
	Executable string
	Secrets    types.Secrets
	Registry   *RegistryConfig
	AuthCfg    string
	BackendCfg string
	Query      string
	Args       []string          // positional arguments after the query
	Flags      map[string]string // extra --name=value flags
	Env        map[string]string // extra environment additions
	Options    types.ActionOptions
}

// Builder turns Inputs into an InvocationSpec. It holds no mutable state.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder validates cfg and returns a Builder
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Backend == "" {
		cfg.Backend = types.SQLBackendEmbedded
	}
	if !cfg.Backend.IsValid() {
		return nil, types.NewConfigurationError("sql_backend", fmt.Errorf("unrecognized SQL backend %q", cfg.Backend))
	}
	switch cfg.Platform {
	case "":
		cfg.Platform = types.ExecutionPlatformNative
	case types.ExecutionPlatformNative:
	case types.ExecutionPlatformDocker:
		return nil, types.NewConfigurationError("execution_platform",
			errors.New("docker execution is not supported, run the CLI natively"))
	default:
		return nil, types.NewConfigurationError("execution_platform", fmt.Errorf("unrecognized execution platform %q", cfg.Platform))
	}
	if cfg.ConcurrencyLimit < 0 {
		return nil, types.NewConfigurationError("concurrency_limit", fmt.Errorf("must be positive, got %d", cfg.ConcurrencyLimit))
	}
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	return &Builder{cfg: cfg}, nil
}

// Config returns the effective configuration after defaults were applied
func (b *Builder) Config() BuilderConfig {
	return b.cfg
}

// Build assembles the invocation for one action call.
// For the embedded backend it consumes one value from the suite counter.
func (b *Builder) Build(sc *SuiteContext, in Inputs) (*types.InvocationSpec, error) {
	if sc == nil {
		return nil, types.NewConfigurationError("suite_context", errors.New("suite context cannot be nil"))
	}
	if strings.TrimSpace(in.Executable) == "" {
		return nil, types.NewConfigurationError("executable", errors.New("executable cannot be empty"))
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, types.NewConfigurationError("query", errors.New("query cannot be empty"))
	}
	if err := in.Options.Validate(); err != nil {
		return nil, err
	}

	registryJSON, err := in.Registry.Serialize()
	if err != nil {
		return nil, err
	}
	backendCfg, err := ParseBackendConfig(b.cfg.Backend, in.BackendCfg)
	if err != nil {
		return nil, err
	}
	extraFlags, err := renderFlags(in.Flags)
	if err != nil {
		return nil, err
	}
	env, err := buildEnv(in.Secrets, in.Env)
	if err != nil {
		return nil, err
	}

	args := []string{
		ExecCommand,
		AuthFlag + "=" + in.AuthCfg,
		RegistryFlag + "=" + registryJSON,
	}
	if !backendCfg.IsEmpty() {
		backendJSON, err := backendCfg.Canonical()
		if err != nil {
			return nil, types.NewConfigurationError("sql_backend_cfg", err)
		}
		args = append(args, SQLBackendFlag+"="+backendJSON)
	}
	args = append(args, extraFlags...)
	args = append(args, in.Query)
	args = append(args, in.Args...)

	var workDir string
	switch b.cfg.Backend {
	case types.SQLBackendEmbedded:
		workDir = sc.CachePath(sc.Next())
	default:
		workDir = sc.CacheRoot()
	}

	return &types.InvocationSpec{
		Executable:       in.Executable,
		Args:             args,
		Env:              env,
		WorkDir:          workDir,
		Secrets:          in.Secrets,
		AuthCfg:          in.AuthCfg,
		Backend:          b.cfg.Backend,
		ConcurrencyLimit: b.cfg.ConcurrencyLimit,
		Query:            in.Query,
	}, nil
}

func renderFlags(flags map[string]string) ([]string, error) {
	names := make([]string, 0, len(flags))
	values := make(map[string]string, len(flags))
	for raw, v := range flags {
		name := strings.TrimLeft(raw, "-")
		if name == "" || strings.ContainsAny(name, "= \t") {
			return nil, types.NewConfigurationError("flags", fmt.Errorf("invalid flag name %q", raw))
		}
		if reservedFlags[name] {
			return nil, types.NewConfigurationError("flags", fmt.Errorf("flag --%s is set by the harness and cannot be overridden", name))
		}
		if _, dup := values[name]; dup {
			return nil, types.NewConfigurationError("flags", fmt.Errorf("flag --%s given more than once", name))
		}
		values[name] = v
		names = append(names, name)
	}
	sort.Strings(names)

	rendered := make([]string, 0, len(names))
	for _, name := range names {
		rendered = append(rendered, "--"+name+"="+values[name])
	}
	return rendered, nil
}

func buildEnv(secrets types.Secrets, extra map[string]string) ([]string, error) {
	bound := map[string]string{
		EnvOktaSecret:   secrets.Okta,
		EnvGitHubSecret: secrets.GitHub,
		EnvK8sSecret:    secrets.K8s,
	}
	for k, v := range extra {
		if k == "" || strings.Contains(k, "=") {
			return nil, types.NewConfigurationError("env", fmt.Errorf("invalid environment variable name %q", k))
		}
		if _, ok := bound[k]; ok {
			return nil, types.NewConfigurationError("env", fmt.Errorf("%s is reserved for secrets", k))
		}
		bound[k] = v
	}

	env := make([]string, 0, len(bound))
	for k, v := range bound {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}
