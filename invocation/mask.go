package invocation

import (
	"regexp"
	"strings"
)

var (
	reDSNPass     = regexp.MustCompile(`(?i)(postgres(?:ql)?://)([^:/@]+):([^@]+)(@)`)
	reKeywordPass = regexp.MustCompile(`(?i)(password=)([^\s;"&]+)`)
)

// MaskDSN hides the password of a postgres URL or keyword/value connection string
func MaskDSN(s string) string {
	out := reDSNPass.ReplaceAllString(s, "$1$2:***$4")
	return reKeywordPass.ReplaceAllString(out, "$1***")
}

// MaskArgv returns a copy of argv safe to log: DSN passwords are hidden and
// any literal occurrence of a secret value is replaced.
func MaskArgv(argv []string, secrets ...string) []string {
	masked := make([]string, len(argv))
	for i, a := range argv {
		a = MaskDSN(a)
		for _, s := range secrets {
			if s != "" {
				a = strings.ReplaceAll(a, s, "***")
			}
		}
		masked[i] = a
	}
	return masked
}
