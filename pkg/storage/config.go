// SPDX-License-Identifier: GPL-2.0-or-later

package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config capture configuration, read from avidump.yaml.
type Config struct {
	OutputDir string `yaml:"outputDir"`
	Prefix    string `yaml:"prefix"`

	CompressionLevel    int `yaml:"compressionLevel"`
	KeyframeInterval    int `yaml:"keyframeInterval"`
	MaxFramesPerSegment int `yaml:"maxFramesPerSegment"`

	SampleRate    int    `yaml:"sampleRate"`
	Channels      int    `yaml:"channels"`
	BitsPerSample int    `yaml:"bitsPerSample"`
	SampleFormat  string `yaml:"sampleFormat"`

	// Source video.
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FPSNum      int    `yaml:"fpsNum"`
	FPSDenom    int    `yaml:"fpsDenom"`
	PixelFormat string `yaml:"pixelFormat"`

	Sidecar      bool   `yaml:"sidecar"`
	LogDB        string `yaml:"logDB"`
	MinFreeBytes uint64 `yaml:"minFreeBytes"`

	ConfigDir string `yaml:"-"`
}

// Config errors.
var (
	ErrPathNotAbsolute = errors.New("path is not absolute")
	ErrInvalidPrefix   = errors.New("invalid prefix")
)

func defaultConfig() Config {
	return Config{
		Prefix:           "capture",
		CompressionLevel: 7,
		KeyframeInterval: 300,
		SampleRate:       48000,
		Channels:         2,
		BitsPerSample:    16,
		SampleFormat:     "s16",
		Width:            256,
		Height:           224,
		FPSNum:           60,
		FPSDenom:         1,
		PixelFormat:      "rgb32",
	}
}

// NewConfig parses the configuration file. Missing fields keep
// their default value and relative paths are resolved against
// the directory of the configuration file.
func NewConfig(configPath string, configYAML []byte) (*Config, error) {
	config := defaultConfig()
	if err := yaml.Unmarshal(configYAML, &config); err != nil {
		return nil, fmt.Errorf("unmarshal %v: %w", filepath.Base(configPath), err)
	}

	config.ConfigDir = filepath.Dir(configPath)
	if !filepath.IsAbs(config.ConfigDir) {
		return nil, fmt.Errorf("config dir '%v': %w", config.ConfigDir, ErrPathNotAbsolute)
	}

	if config.OutputDir == "" {
		config.OutputDir = "captures"
	}
	config.OutputDir = config.resolve(config.OutputDir)
	if config.LogDB != "" {
		config.LogDB = config.resolve(config.LogDB)
	}

	if config.Prefix == "" || strings.ContainsAny(config.Prefix, `/\`) {
		return nil, fmt.Errorf("%w: '%v'", ErrInvalidPrefix, config.Prefix)
	}
	return &config, nil
}

func (c Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.ConfigDir, path)
}
