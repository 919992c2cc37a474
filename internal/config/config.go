// Package config provides configuration helpers for go-hab commands.
// Values come from the environment (optionally a .env file); command line
// flags take precedence over everything here.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/habproj/go-hab/internal/log"
)

// Defaults for the serial link and the classification loop.
const (
	DefaultBaudRate    = 9600
	DefaultLinkTimeout = 1 * time.Second
	DefaultSettleDelay = 2 * time.Second
	DefaultInterval    = 500 * time.Millisecond
	DefaultModelPath   = "models/hab_classifier.onnx"
	DefaultLabelsPath  = "models/labels.txt"
)

// LoadDotenv loads a .env file from the working directory if present.
// A missing file is not an error.
func LoadDotenv() {
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env file")
	}
}

// Env returns the value of key, or fallback if unset or empty.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns the integer value of key, or fallback if unset or invalid.
func EnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return fallback
}

// EnvDuration returns the duration value of key, or fallback if unset or invalid.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn("ignoring non-duration env value", "key", key, "value", v)
	}
	return fallback
}

// EnvBool returns the boolean value of key, or fallback if unset or invalid.
func EnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
