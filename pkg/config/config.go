// Package config loads cadgrade settings: defaults, then an optional YAML
// file, then CADGRADE_* environment variables, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/cadgrade/pkg/logging"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPolicy scales the CAD score to 90 points and adds the quiz score.
const DefaultPolicy = "(+ (clamp (* cad 0.9) 0 90) quiz)"

// envPrefix namespaces environment overrides.
const envPrefix = "CADGRADE_"

// Config is the full cadgrade configuration.
type Config struct {
	Tolerance float64        `yaml:"tolerance" validate:"gt=0,lt=1"`
	Mode      string         `yaml:"mode" validate:"oneof=auto part assembly drawing"`
	Strict    bool           `yaml:"strict"`
	Workers   int            `yaml:"workers" validate:"gte=1,lte=256"`
	QueueSize int            `yaml:"queue_size" validate:"gte=1"`
	Timeout   time.Duration  `yaml:"timeout" validate:"gt=0"`
	MeshCells int            `yaml:"mesh_cells" validate:"gte=8,lte=1000"`
	Modeler   string         `yaml:"modeler" validate:"oneof=sdfx manifold"`
	Log       logging.Config `yaml:"log"`
	Grading   Grading        `yaml:"grading"`
}

// Grading controls how a comparison and a quiz fold into a grade.
type Grading struct {
	Policy     string  `yaml:"policy" validate:"required"`
	QuizPoints float64 `yaml:"quiz_points" validate:"gte=0"`
	PassMark   float64 `yaml:"pass_mark" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Tolerance: 1e-3,
		Mode:      "auto",
		Strict:    true,
		Workers:   4,
		QueueSize: 64,
		Timeout:   2 * time.Minute,
		MeshCells: 200,
		Modeler:   "sdfx",
		Log:       logging.Config{Level: "info", Format: "json"},
		Grading: Grading{
			Policy:     DefaultPolicy,
			QuizPoints: 10,
			PassMark:   90,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// applyEnv overrides fields from CADGRADE_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		return v, ok && v != ""
	}

	floats := map[string]*float64{
		"TOLERANCE":   &cfg.Tolerance,
		"QUIZ_POINTS": &cfg.Grading.QuizPoints,
		"PASS_MARK":   &cfg.Grading.PassMark,
	}
	for key, dst := range floats {
		if v, ok := get(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"WORKERS":    &cfg.Workers,
		"QUEUE_SIZE": &cfg.QueueSize,
		"MESH_CELLS": &cfg.MeshCells,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	strs := map[string]*string{
		"MODE":       &cfg.Mode,
		"MODELER":    &cfg.Modeler,
		"POLICY":     &cfg.Grading.Policy,
		"LOG_LEVEL":  &cfg.Log.Level,
		"LOG_FORMAT": &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("STRICT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sSTRICT: %w", envPrefix, err)
		}
		cfg.Strict = b
	}
	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sTIMEOUT: %w", envPrefix, err)
		}
		cfg.Timeout = d
	}
	return nil
}
