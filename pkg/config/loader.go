package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration in layers: defaults, then the YAML file at path
// (skipped when path is empty), then environment variables named by `env` tags.
// .env.local and .env are loaded first without overriding variables already set;
// ENV_FILE names a single file to load instead.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(reflect.ValueOf(cfg).Elem())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv walks nested structs and overrides tagged fields from the environment.
// Unparseable values are ignored so a typo never zeroes a default.
func applyEnv(v reflect.Value) {
	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			applyEnv(field)
			continue
		}

		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		setFromString(field, val)
	}
}

func setFromString(field reflect.Value, val string) {
	switch {
	case field.Type() == durationType:
		if d, err := time.ParseDuration(val); err == nil {
			field.SetInt(int64(d))
		}
	case field.Kind() == reflect.String:
		field.SetString(val)
	case field.Kind() == reflect.Int:
		if n, err := strconv.Atoi(val); err == nil {
			field.SetInt(int64(n))
		}
	case field.Kind() == reflect.Float64:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			field.SetFloat(f)
		}
	case field.Kind() == reflect.Bool:
		if b, err := strconv.ParseBool(val); err == nil {
			field.SetBool(b)
		}
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var items []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
}
