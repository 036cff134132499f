package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// configHeader is written at the top of generated configuration files.
const configHeader = `# linepool Configuration File
#
# Every value below is the built-in default. Settings can also be given as
# environment variables (LINEPOOL_<SECTION>_<KEY>, e.g. LINEPOOL_SERVER_PORT)
# or CLI flags, which take precedence over this file.
#
# queue.backpressure:
#   block   readers stall when the queue is full (per-connection backpressure)
#   reject  wait up to queue.reject_wait for space, then reply "ERR server busy"
#
# server.max_connections: 0 means unlimited (one reader per connection).
# rate_limit.requests_per_second: 0 disables the admission limiter.

`

// sectionComments documents each top-level section in generated files.
var sectionComments = map[string]string{
	"logging":    "Log level (DEBUG, INFO, WARN, ERROR), format (text, json) and output (stdout, stderr or a file path)",
	"server":     "Listening socket and per-connection limits",
	"queue":      "Shared task queue",
	"workers":    "Worker pool",
	"rate_limit": "Admission limiter shared by all connections",
	"stats":      "Periodic [stats] log line",
	"metrics":    "Prometheus endpoint (/metrics, /healthz, /stats)",
}

// InitConfig writes the default configuration to the default location.
//
// Returns the path written, or an error if the file already exists and force
// is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating parent
// directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML, one commented block per
// top-level section, in a fixed order.
func generateYAMLWithComments(cfg *Config) (string, error) {
	tree, err := toMap(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to convert config: %w", err)
	}

	var b strings.Builder
	b.WriteString(configHeader)

	for _, section := range sectionOrder(tree) {
		out, err := yaml.Marshal(map[string]any{section: tree[section]})
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s section: %w", section, err)
		}
		if comment, ok := sectionComments[section]; ok {
			fmt.Fprintf(&b, "# %s\n", comment)
		}
		b.Write(out)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// sectionOrder lists known sections in documentation order, then any others
// alphabetically.
func sectionOrder(tree map[string]any) []string {
	known := []string{"logging", "server", "queue", "workers", "rate_limit", "stats", "metrics"}

	order := make([]string, 0, len(tree))
	seen := make(map[string]bool, len(tree))
	for _, key := range known {
		if _, ok := tree[key]; ok {
			order = append(order, key)
			seen[key] = true
		}
	}

	var rest []string
	for key := range tree {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)

	return append(order, rest...)
}

// toMap converts cfg into nested maps keyed by mapstructure tags. Durations
// become strings ("1s") so the result reads naturally as YAML and parses back
// through viper's duration hook.
func toMap(cfg *Config) (map[string]any, error) {
	var out map[string]any
	if err := mapstructure.Decode(cfg, &out); err != nil {
		return nil, err
	}
	return normalize(out).(map[string]any), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = normalize(child)
		}
		return val
	case time.Duration:
		return val.String()
	default:
		return v
	}
}

// flatten turns nested maps into dotted keys ("server.port").
func flatten(prefix string, tree map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			for ck, cv := range flatten(key, child) {
				out[ck] = cv
			}
			continue
		}
		out[key] = v
	}
	return out
}
