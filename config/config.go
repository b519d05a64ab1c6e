// Package config defines the structures to configure the driver.
package config

import (
	"fmt"
	"net"

	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/utils"
)

const (
	// DefaultBindAddress is the address the web bridge listens on when none is configured.
	DefaultBindAddress = "localhost:8080"
	// DefaultQueueSize is the per-subscriber queue depth of every output topic.
	DefaultQueueSize = 2
)

// Config describes how to run the driver.
type Config struct {
	ConfigFilePath string `json:"-"`

	// Camera holds the capture settings and the device model. It is decoded by the camera
	// package so that missing keys can be reported.
	Camera     utils.AttributeMap            `json:"camera,omitempty"`
	Publishing PublishingConfig              `json:"publishing"`
	Web        WebConfig                     `json:"web"`
	LogConfig  []logging.LoggerPatternConfig `json:"log,omitempty"`
	LogFile    LogFileConfig                 `json:"log_file"`
}

// Ensure validates the config and fills in defaults.
func (c *Config) Ensure(logger logging.Logger) error {
	if c.Camera == nil {
		c.Camera = utils.AttributeMap{}
	}
	if err := c.Publishing.Validate("publishing"); err != nil {
		return err
	}
	if err := c.Web.Validate("web"); err != nil {
		return err
	}
	if err := c.LogFile.Validate("log_file"); err != nil {
		return err
	}
	for idx, lpc := range c.LogConfig {
		if err := logging.ValidatePatternConfigs([]logging.LoggerPatternConfig{lpc}); err != nil {
			// A bad pattern only loses its own level change.
			logger.Warnw("ignoring invalid log config", "path", fmt.Sprintf("log.%d", idx), "error", err)
		}
	}
	return nil
}

// PublishingConfig describes how outputs are published.
type PublishingConfig struct {
	QueueSize int `json:"queue_size,omitempty"`
	// CompressedFormat enables a compressed copy of each raw image topic ("png", "jpeg", "qoi"
	// or "ppm").
	CompressedFormat string `json:"compressed_format,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (pc *PublishingConfig) Validate(path string) error {
	if pc.QueueSize < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("queue_size must be positive, got %d", pc.QueueSize))
	}
	if pc.QueueSize == 0 {
		pc.QueueSize = DefaultQueueSize
	}
	if pc.CompressedFormat != "" {
		if _, ok := utils.MimeTypeFromFormat(pc.CompressedFormat); !ok {
			return utils.NewConfigValidationError(path,
				errors.Errorf("unsupported compressed_format %q", pc.CompressedFormat))
		}
	}
	return nil
}

// WebConfig describes the optional HTTP bridge to the topics.
type WebConfig struct {
	Enabled            bool     `json:"enabled"`
	BindAddress        string   `json:"bind_address,omitempty"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (wc *WebConfig) Validate(path string) error {
	if wc.BindAddress == "" {
		wc.BindAddress = DefaultBindAddress
	}
	if _, _, err := net.SplitHostPort(wc.BindAddress); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "error validating bind_address"))
	}
	return nil
}

// LogFileConfig describes an optional rotated log file written next to stdout.
type LogFileConfig struct {
	Path string `json:"path,omitempty"`
	// MaxSize is a human readable size such as "50MB" after which the file is rotated.
	MaxSize    string `json:"max_size,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (lf *LogFileConfig) Validate(path string) error {
	if lf.MaxBackups < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_backups must not be negative"))
	}
	if lf.MaxSize != "" {
		size, err := units.FromHumanSize(lf.MaxSize)
		if err != nil {
			return utils.NewConfigValidationError(path, errors.Wrap(err, "error parsing max_size"))
		}
		if size <= 0 {
			return utils.NewConfigValidationError(path, errors.Errorf("max_size must be positive, got %q", lf.MaxSize))
		}
	}
	if lf.Path == "" && (lf.MaxSize != "" || lf.MaxBackups != 0 || lf.Compress) {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	return nil
}

// MaxSizeMB returns MaxSize rounded up to whole megabytes, or 0 when unset.
func (lf *LogFileConfig) MaxSizeMB() int {
	if lf.MaxSize == "" {
		return 0
	}
	size, err := units.FromHumanSize(lf.MaxSize)
	if err != nil || size <= 0 {
		return 0
	}
	return int((size + units.MB - 1) / units.MB)
}
