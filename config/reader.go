package config

import (
	"bytes"
	"io"
	"sort"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bhr3310/motioncore/logging"
)

// Read reads a YAML or JSON config from the given file, expanding ${VAR} references from the
// environment first.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
// Keys that are absent keep their Default values.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var attributes map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&attributes); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "failed to decode config %q", originalPath)
	}

	cfg := Default()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %q", originalPath)
	}
	if len(md.Unused) != 0 {
		sort.Strings(md.Unused)
		logger.Warnw("ignoring unknown config keys", "path", originalPath, "keys", md.Unused)
	}

	if err := cfg.Validate(originalPath); err != nil {
		return nil, err
	}
	logger.Debugw("loaded config",
		"path", originalPath,
		"follower", cfg.Follower.Type,
		"loop_period_sec", cfg.LoopPeriod)
	return &cfg, nil
}
