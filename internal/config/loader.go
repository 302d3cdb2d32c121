package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MQ_DOWNLOADS_MAX_PARALLEL
const EnvPrefix = "MQ"

// Load builds settings from defaults, the optional file at path (YAML or TOML
// by extension), the optional dotenv file and finally the environment.
// Empty path or envFile skip that layer; a missing envFile is not an error.
func Load(path, envFile string) (*Settings, error) {
	var s Settings

	if path != "" {
		if err := decodeFile(path, &s); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	s.setDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &s, nil
}

func decodeFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		// An empty document leaves the defaults in place
		if err := decoder.Decode(s); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode config: %w", err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), s)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode config: unknown field %q", undecoded[0].String())
		}
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	return nil
}
