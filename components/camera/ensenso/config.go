package ensenso

import (
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/ensenso/config"
	"go.viam.com/ensenso/utils"
)

// Defaults for keys missing from the camera config. The device model has no default.
const (
	DefaultSerialNumber = "150533"
	DefaultFrameID      = "ensenso_optical_frame"
	DefaultFrontLight   = false
	DefaultProjector    = false
)

// Attrs is the camera section of the config as written. Pointer fields tell a missing key apart
// from its zero value.
type Attrs struct {
	Model        *string            `json:"model,omitempty"`
	SerialNumber *string            `json:"serial_no,omitempty"`
	FrameID      *string            `json:"camera_frame_id,omitempty"`
	FrontLight   *bool              `json:"front_light,omitempty"`
	Projector    *bool              `json:"projector,omitempty"`
	Device       utils.AttributeMap `json:"device,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (attrs *Attrs) Validate(path string) error {
	if attrs.SerialNumber != nil && *attrs.SerialNumber == "" {
		return utils.NewConfigValidationError(path, errors.New("serial_no must not be empty"))
	}
	if attrs.FrameID != nil && *attrs.FrameID == "" {
		return utils.NewConfigValidationError(path, errors.New("camera_frame_id must not be empty"))
	}
	if attrs.Model == nil || *attrs.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	return nil
}

// CaptureConfig is the resolved camera config. It is immutable once built.
type CaptureConfig struct {
	Model        string
	SerialNumber string
	FrameID      string
	FrontLight   bool
	Projector    bool
	// DeviceAttributes are handed to the device model's constructor.
	DeviceAttributes utils.AttributeMap
}

// CaptureOptions returns the options Configure applies.
func (cfg CaptureConfig) CaptureOptions() CaptureOptions {
	return CaptureOptions{FrontLight: cfg.FrontLight, Projector: cfg.Projector}
}

// NewCaptureConfig resolves the camera section of the config. The model is required. Every other
// missing key falls back to its default and produces a diagnostic, as does every key nothing
// reads.
func NewCaptureConfig(attributes utils.AttributeMap) (CaptureConfig, []config.Diagnostic, error) {
	attrs, unused, err := utils.TransformAttributeMap[*Attrs](attributes)
	if err != nil {
		return CaptureConfig{}, nil, utils.NewConfigValidationError("camera", err)
	}
	if err := attrs.Validate("camera"); err != nil {
		return CaptureConfig{}, nil, err
	}

	var diags []config.Diagnostic
	cfg := CaptureConfig{
		Model:            *attrs.Model,
		SerialNumber:     resolve(attrs.SerialNumber, "serial_no", DefaultSerialNumber, &diags),
		FrameID:          resolve(attrs.FrameID, "camera_frame_id", DefaultFrameID, &diags),
		FrontLight:       resolve(attrs.FrontLight, "front_light", DefaultFrontLight, &diags),
		Projector:        resolve(attrs.Projector, "projector", DefaultProjector, &diags),
		DeviceAttributes: attrs.Device,
	}
	if cfg.DeviceAttributes == nil {
		cfg.DeviceAttributes = utils.AttributeMap{}
	}

	sort.Strings(unused)
	for _, key := range unused {
		diags = append(diags, config.NewUnknownKeyDiagnostic(key))
	}
	return cfg, diags, nil
}

func resolve[T any](value *T, key string, def T, diags *[]config.Diagnostic) T {
	if value == nil {
		*diags = append(*diags, config.NewMissingDiagnostic(key, def))
		return def
	}
	return *value
}
