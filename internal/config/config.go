// Package config loads procstream settings and job definitions from TOML files,
// environment variables and CLI flags, and watches files for changes.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/procstream/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every `env` tag.
const EnvPrefix = "PROCSTREAM_"

// LoadConfig fills the flat options struct pointed to by opts with precedence
// CLI flag > environment > TOML file > existing value.
//
// Fields are bound by tags: `toml:"section.key"` reads a dotted path from the
// file named by the struct's Config field, `env:"KEY"` reads EnvPrefix+KEY.
// If cmd is non-nil, fields whose flag (kebab-cased field name) was set
// explicitly on the command line are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: options must be a pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := changedFlags(cmd)

	var file map[string]any
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		data, err := os.ReadFile(f.String())
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse TOML config %s: %w", f.String(), err)
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("failed to read config %s: %w", f.String(), err)
		}
	}

	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		if changed[fieldNameToFlag(sf.Name)] {
			continue
		}

		if path := sf.Tag.Get("toml"); path != "" && file != nil {
			if value := getNestedValue(file, path); value != nil {
				setFieldValue(field, value)
			}
		}
		if key := sf.Tag.Get("env"); key != "" {
			if envValue := os.Getenv(EnvPrefix + key); envValue != "" {
				setFieldValueFromString(field, envValue)
			}
		}
	}

	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	visit := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(visit)
	cmd.PersistentFlags().VisitAll(visit)
	return changed
}

// fieldNameToFlag converts a struct field name to the kebab-case flag name
// humacli derives from it. Acronyms stay together.
// Example: "LoggingLevel" -> "logging-level", "LoggingAPI" -> "logging-api".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var result []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
				result = append(result, '-')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

// setFieldValue sets a field from a decoded TOML value. Mismatched types are ignored.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return
		}
		slice := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, strOk := item.(string); strOk {
				slice = append(slice, s)
			}
		}
		field.Set(reflect.ValueOf(slice))
	}
}

// setFieldValueFromString sets a field from an environment value.
// Slices are comma separated.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}

// LoadLoggingConfig reads the [logging] table of a config file. Keys other
// than level and format are per-module levels. Missing or unreadable files
// yield the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = s
		case "format":
			cfg.Format = s
		default:
			cfg.Modules[key] = s
		}
	}
	return cfg
}
