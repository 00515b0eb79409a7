package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MatchMode selects the predicate used to compare a stream with its expectation
type MatchMode string

const (
	MatchExact  MatchMode = "exact"
	MatchRegexp MatchMode = "regexp"
)

// Recognized action option keys
const (
	OptionRepeatCount      = "repeat_count"
	OptionTimeout          = "timeout"
	OptionExpectedExitCode = "expected_exit_code"
	OptionStripANSI        = "strip_ansi"
	OptionMatch            = "match"
)

// DefaultRepeatCount is used when repeat_count is omitted
const DefaultRepeatCount = 1

// ActionOptions are the control options of a test action. None of them reach the CLI argv.
type ActionOptions struct {
	RepeatCount      int
	Timeout          time.Duration // zero means the library default
	ExpectedExitCode *int          // nil means the exit code is not asserted
	StripANSI        bool
	Match            MatchMode
}

// VerifyOptions is the subset of ActionOptions consumed by the stream verifier
type VerifyOptions struct {
	Match            MatchMode
	StripANSI        bool
	ExpectedExitCode *int
}

// DefaultActionOptions returns the options used when none are supplied
func DefaultActionOptions() ActionOptions {
	return ActionOptions{
		RepeatCount: DefaultRepeatCount,
		Match:       MatchExact,
	}
}

// WithDefaults fills zero values so that an omitted option behaves like its default
func (o ActionOptions) WithDefaults() ActionOptions {
	if o.RepeatCount == 0 {
		o.RepeatCount = DefaultRepeatCount
	}
	if o.Match == "" {
		o.Match = MatchExact
	}
	return o
}

// Validate checks option ranges
func (o ActionOptions) Validate() error {
	if o.RepeatCount < 0 {
		return NewConfigurationError(OptionRepeatCount, fmt.Errorf("must be positive, got %d", o.RepeatCount))
	}
	if o.Timeout < 0 {
		return NewConfigurationError(OptionTimeout, fmt.Errorf("cannot be negative, got %v", o.Timeout))
	}
	switch o.Match {
	case "", MatchExact, MatchRegexp:
	default:
		return NewConfigurationError(OptionMatch, fmt.Errorf("unrecognized match mode %q", o.Match))
	}
	return nil
}

// VerifyOptions extracts the verifier settings
func (o ActionOptions) VerifyOptions() VerifyOptions {
	o = o.WithDefaults()
	return VerifyOptions{
		Match:            o.Match,
		StripANSI:        o.StripANSI,
		ExpectedExitCode: o.ExpectedExitCode,
	}
}

// ParseActionOptions builds ActionOptions from a free-form key/value bag.
// Unknown keys are rejected rather than forwarded to the CLI.
func ParseActionOptions(raw map[string]string) (ActionOptions, error) {
	return DefaultActionOptions().Merge(raw)
}

// Merge overlays raw key/value options on top of o
func (o ActionOptions) Merge(raw map[string]string) (ActionOptions, error) {
	var unknown []string
	for key, value := range raw {
		value = strings.TrimSpace(value)
		switch key {
		case OptionRepeatCount:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return o, NewConfigurationError(key, fmt.Errorf("must be a positive integer, got %q", value))
			}
			o.RepeatCount = n
		case OptionTimeout:
			d, err := time.ParseDuration(value)
			if err != nil {
				return o, NewConfigurationError(key, err)
			}
			o.Timeout = d
		case OptionExpectedExitCode:
			n, err := strconv.Atoi(value)
			if err != nil {
				return o, NewConfigurationError(key, fmt.Errorf("must be an integer, got %q", value))
			}
			o.ExpectedExitCode = &n
		case OptionStripANSI:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return o, NewConfigurationError(key, err)
			}
			o.StripANSI = b
		case OptionMatch:
			o.Match = MatchMode(value)
		default:
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return o, NewConfigurationError("options", fmt.Errorf("unrecognized option(s): %s", strings.Join(unknown, ", ")))
	}
	return o, o.Validate()
}
