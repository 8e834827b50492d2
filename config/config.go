// Package config loads the bpms configuration file. Each section has a
// default value and a validator; callers unmarshal over the defaults so a
// missing file or section leaves them intact.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is where the config file is looked for unless
	// overridden on the command line.
	DefaultConfigDir = "/etc/bpms"

	configFileName = "config.yaml"
)

type Config struct {
	v        *viper.Viper
	filePath string
}

// New reads the config file from dir. A missing file is not an error; all
// sections then report their defaults.
func New(dir string) (*Config, error) {
	filePath := filepath.Join(dir, configFileName)
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")

	if _, err := os.Stat(filePath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return &Config{v: v, filePath: filePath}, nil
}

// Unmarshal decodes the given section over raw, leaving fields the file
// does not mention untouched.
func (c *Config) Unmarshal(key string, raw interface{}) error {
	return c.v.UnmarshalKey(key, raw, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
}

// FilePath returns where the config was (or would be) read from.
func (c *Config) FilePath() string {
	return c.filePath
}
