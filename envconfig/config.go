package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/jmorganca/headliner/logutil"
)

var (
	// Set via HEADLINER_CONFIG in the environment
	ConfigFile string
	// Set via HEADLINER_DEBUG in the environment
	LogLevel slog.Level
	// Set via HEADLINER_HOST in the environment
	Host string
	// Set via HEADLINER_NOPROMPT in the environment
	NoPrompt bool
	// Set via HEADLINER_SEED in the environment, overrides the config seed
	Seed uint64
	// True when HEADLINER_SEED was set
	SeedSet bool
)

const (
	defaultConfigFile = "seq2seq.toml"
	defaultHost       = "127.0.0.1"
	defaultPort       = "11480"
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"HEADLINER_CONFIG":   {"HEADLINER_CONFIG", ConfigFile, "Path to the seq2seq configuration file (default \"seq2seq.toml\")"},
		"HEADLINER_DEBUG":    {"HEADLINER_DEBUG", LogLevel, "Show additional debug information (1) or per step traces (2)"},
		"HEADLINER_HOST":     {"HEADLINER_HOST", Host, "IP Address for the summarize server (default 127.0.0.1:11480)"},
		"HEADLINER_NOPROMPT": {"HEADLINER_NOPROMPT", NoPrompt, "Do not print the interactive prompt"},
		"HEADLINER_SEED":     {"HEADLINER_SEED", Seed, "Random seed for sampling and initialization"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	ConfigFile = clean("HEADLINER_CONFIG")
	if ConfigFile == "" {
		ConfigFile = defaultConfigFile
	}

	LogLevel = logutil.Level(clean("HEADLINER_DEBUG"))

	Host = hostPort(clean("HEADLINER_HOST"))

	NoPrompt = false
	if noprompt := clean("HEADLINER_NOPROMPT"); noprompt != "" {
		d, err := strconv.ParseBool(noprompt)
		NoPrompt = err != nil || d
	}

	Seed, SeedSet = 0, false
	if seed := clean("HEADLINER_SEED"); seed != "" {
		s, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			slog.Error("invalid setting, ignoring", "HEADLINER_SEED", seed, "error", err)
		} else {
			Seed, SeedSet = s, true
		}
	}
}

func hostPort(s string) string {
	if s == "" {
		return net.JoinHostPort(defaultHost, defaultPort)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		host, port = s, defaultPort
		if ip := net.ParseIP(strings.Trim(s, "[]")); ip != nil {
			host = ip.String()
		}
	}

	if host == "" && port == "" {
		host = defaultHost
	}

	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		slog.Warn("invalid port, using default", "HEADLINER_HOST", s, "port", port)
		port = defaultPort
	}

	return net.JoinHostPort(host, port)
}
