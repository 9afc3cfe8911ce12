package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The accessors back the `config get|set|list` commands. They work on the
// JSON form of the config so paths use the file's field names
// ("provider.model", "store.debounceMs"), not Go identifiers.

func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetByPath reads one value by its dot-separated path.
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	node := any(tree)
	for _, key := range strings.Split(path, ".") {
		node, err = descend(node, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return node, nil
}

// descend resolves one path segment against a decoded JSON node.
func descend(node any, key string) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		next, ok := n[key]
		if !ok {
			return nil, fmt.Errorf("no such key %q", key)
		}
		return next, nil
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n) {
			return nil, fmt.Errorf("bad list index %q", key)
		}
		return n[i], nil
	default:
		return nil, fmt.Errorf("cannot descend into value at %q", key)
	}
}

// SetByPath writes one value by its dot-separated path, then round-trips
// the tree back into cfg so the usual JSON decode rules apply. String
// input is coerced to bool or number when it parses as one.
func SetByPath(cfg *Config, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	keys := strings.Split(path, ".")
	parent := tree
	for _, key := range keys[:len(keys)-1] {
		section, ok := parent[key].(map[string]any)
		if !ok {
			return fmt.Errorf("%s: %q is not a config section", path, key)
		}
		parent = section
	}
	parent[keys[len(keys)-1]] = coerce(value)

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// coerce turns CLI string input into the JSON type it reads as, so
// "false" disables a flag and "750" sets a number.
func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a deep copy of the config with every secret masked,
// safe to print or log.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	masked := new(Config)
	if err := json.Unmarshal(data, masked); err != nil {
		return cfg
	}
	for _, secret := range []*string{
		&masked.Provider.APIKey,
		&masked.Market.APIKey,
		&masked.News.APIKey,
		&masked.Channels.Telegram.Token,
	} {
		if *secret != "" {
			*secret = mask(*secret)
		}
	}
	return masked
}

// mask keeps the first and last four characters of a long secret and
// hides the middle. Short secrets are hidden entirely.
func mask(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens the config into path -> value pairs for display.
func ListPaths(cfg *Config) map[string]any {
	tree, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	collectLeaves(tree, "", out)
	return out
}

func collectLeaves(tree map[string]any, prefix string, out map[string]any) {
	for key, v := range tree {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if sub, ok := v.(map[string]any); ok {
			collectLeaves(sub, path, out)
			continue
		}
		out[path] = v
	}
}
