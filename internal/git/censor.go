package git

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Redacted replaces secrets removed by RedactSecrets.
const Redacted = "***"

// Censor rewrites a single value, removing sensitive substrings.
type Censor func(string) string

// NoCensor returns its input unchanged.
func NoCensor(s string) string { return s }

// CensoringExecutor applies a Censor to every argument before delegating to
// the wrapped Executor, and to the output the wrapped Executor returns.
type CensoringExecutor struct {
	censor Censor
	inner  Executor
}

// NewCensoringExecutor wraps inner. A nil censor behaves like NoCensor.
func NewCensoringExecutor(censor Censor, inner Executor) *CensoringExecutor {
	if censor == nil {
		censor = NoCensor
	}
	return &CensoringExecutor{censor: censor, inner: inner}
}

func (e *CensoringExecutor) Exec(ctx context.Context, cmd Command) (Output, error) {
	args := make([]string, len(cmd.Args))
	for i, arg := range cmd.Args {
		args[i] = e.censor(arg)
	}

	out, err := e.inner.Exec(ctx, Command{Dir: cmd.Dir, Args: args})
	out = e.censorOutput(out)

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		cmdErr.Output = e.censorOutput(cmdErr.Output)
	}
	return out, err
}

func (e *CensoringExecutor) censorOutput(out Output) Output {
	if len(out.Stdout) > 0 {
		out.Stdout = []byte(e.censor(string(out.Stdout)))
	}
	if len(out.Stderr) > 0 {
		out.Stderr = []byte(e.censor(string(out.Stderr)))
	}
	return out
}

// RedactSecrets returns a Censor that replaces every occurrence of each
// non-empty secret with Redacted.
func RedactSecrets(secrets ...string) Censor {
	var replacements []string
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		replacements = append(replacements, secret, Redacted)
	}
	if len(replacements) == 0 {
		return NoCensor
	}
	replacer := strings.NewReplacer(replacements...)
	return replacer.Replace
}

// StripURLCredentials removes the userinfo section from http(s) URLs.
// Values that are not such URLs pass through unchanged.
func StripURLCredentials(value string) string {
	if !strings.Contains(value, "://") {
		return value
	}
	u, err := url.Parse(value)
	if err != nil || u.User == nil || u.Host == "" {
		return value
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return value
	}
	u.User = nil
	return u.String()
}

// ChainCensors applies each censor in order.
func ChainCensors(censors ...Censor) Censor {
	return func(value string) string {
		for _, censor := range censors {
			if censor != nil {
				value = censor(value)
			}
		}
		return value
	}
}
