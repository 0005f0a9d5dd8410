package core

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the project-settings lookup the renderer consults at startup.
// Keys are slash separated ("rendering/quality/shadows/filter_mode"); in the
// TOML file they are written as nested tables.
type Settings struct {
	values map[string]interface{}
}

// NewSettings returns an empty settings table; every lookup falls back to
// its default.
func NewSettings() *Settings {
	return &Settings{values: map[string]interface{}{}}
}

// LoadSettings reads a TOML project file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings %q: %w", path, err)
	}
	return ParseSettings(data)
}

// ParseSettings parses TOML text into a flattened settings table.
func ParseSettings(data []byte) (*Settings, error) {
	var tree map[string]interface{}
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	s := NewSettings()
	flatten("", tree, s.values)
	return s, nil
}

func flatten(prefix string, tree map[string]interface{}, out map[string]interface{}) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "/" + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// Set overrides a key; used by hosts and tests.
func (s *Settings) Set(key string, v interface{}) {
	s.values[key] = v
}

// Has reports whether key was provided.
func (s *Settings) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *Settings) Bool(key string, def bool) bool {
	switch v := s.values[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (s *Settings) Int(key string, def int) int {
	switch v := s.values[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s *Settings) Float(key string, def float32) float32 {
	switch v := s.values[key].(type) {
	case float64:
		return float32(v)
	case float32:
		return v
	case int64:
		return float32(v)
	case int:
		return float32(v)
	case string:
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}

func (s *Settings) String(key string, def string) string {
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return def
}
