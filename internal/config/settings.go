package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

const keyDelimiter = ":"

// Settings is a read-only view over merged configuration keys such as
// "Jwt:Key" or "AllowedOrigins:0". Lookups are case-insensitive.
type Settings struct {
	values map[string]string
}

// Get returns the raw value stored for key.
func (s Settings) Get(key string) (string, bool) {
	val, ok := s.values[normalizeKey(key)]
	return val, ok
}

// String returns the trimmed value for key or an empty string.
func (s Settings) String(key string) string {
	val, _ := s.Get(key)
	return strings.TrimSpace(val)
}

// Strings returns an ordered list stored either as indexed children
// ("Key:0", "Key:1") or as a comma separated scalar.
func (s Settings) Strings(key string) []string {
	if scalar := s.String(key); scalar != "" {
		var out []string
		for _, part := range strings.Split(scalar, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	prefix := normalizeKey(key) + keyDelimiter
	type indexed struct {
		idx int
		val string
	}
	var items []indexed
	for k, v := range s.values {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err != nil {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			items = append(items, indexed{idx: idx, val: v})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })

	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.val)
	}
	return out
}

// Int parses key as an integer, returning fallback when it is unset or blank.
func (s Settings) Int(key string, fallback int) (int, error) {
	val := s.String(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

// Bool parses key as a boolean, returning fallback when it is unset or blank.
func (s Settings) Bool(key string, fallback bool) (bool, error) {
	val := s.String(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

// Len reports the number of stored keys.
func (s Settings) Len() int {
	return len(s.values)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// settingsBuilder accumulates layers before they are frozen into Settings.
type settingsBuilder struct {
	values map[string]string
}

func newSettingsBuilder() *settingsBuilder {
	return &settingsBuilder{values: make(map[string]string)}
}

// set replaces key and drops any indexed or nested children so an override
// never partially merges with the layer below it.
func (b *settingsBuilder) set(key, value string) {
	norm := normalizeKey(key)
	prefix := norm + keyDelimiter
	for k := range b.values {
		if strings.HasPrefix(k, prefix) {
			delete(b.values, k)
		}
	}
	b.values[norm] = value
}

// mergeFile flattens a JSON-with-comments settings file. Missing files are
// skipped.
func (b *settingsBuilder) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read settings %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(raw)))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}

	flat := make(map[string]string)
	flatten("", doc, flat)
	for k, v := range flat {
		b.values[k] = v
	}
	return nil
}

// mergeEnviron maps variables such as "Jwt__Key" or "AllowedOrigins__0"
// onto their colon-delimited keys.
func (b *settingsBuilder) mergeEnviron(environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.Contains(name, "__") {
			continue
		}
		b.values[normalizeKey(strings.ReplaceAll(name, "__", keyDelimiter))] = value
	}
}

func (b *settingsBuilder) build() Settings {
	frozen := make(map[string]string, len(b.values))
	for k, v := range b.values {
		frozen[k] = v
	}
	return Settings{values: frozen}
}

func flatten(prefix string, node any, out map[string]string) {
	join := func(k string) string {
		if prefix == "" {
			return normalizeKey(k)
		}
		return prefix + keyDelimiter + normalizeKey(k)
	}

	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			flatten(join(k), child, out)
		}
	case []any:
		for i, child := range v {
			flatten(join(strconv.Itoa(i)), child, out)
		}
	case string:
		out[prefix] = v
	case json.Number:
		out[prefix] = v.String()
	case bool:
		out[prefix] = strconv.FormatBool(v)
	case nil:
		out[prefix] = ""
	}
}
