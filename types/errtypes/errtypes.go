// Package errtypes contains custom error types
package errtypes

import (
	"fmt"
	"strings"
)

const (
	LoadErrMsg   = "failed to load"
	ConfigErrMsg = "invalid configuration"
)

// LoadError reports a missing or corrupt vocabulary, dataset or checkpoint file.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %q", LoadErrMsg, e.Path)
	if e.Reason != "" {
		fmt.Fprintf(&sb, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ConfigError reports a missing or malformed configuration key.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %q: %s", ConfigErrMsg, e.Key, e.Reason)
}
