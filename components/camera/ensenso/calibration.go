package ensenso

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/ensenso/messages"
)

// Calibration returns the calibration of one optical path as reported by the device. It does not
// take the lifecycle lock so it is safe to call from a capture callback.
func (s *Session) Calibration(ctx context.Context, path OpticalPath) (*messages.CameraInfo, error) {
	if state := s.State(); state == StateClosed {
		return nil, newInvalidStateError("query calibration", state)
	}
	if path != Left && path != Right {
		return nil, errors.Errorf("unknown optical path %d", int(path))
	}
	info, err := s.device.CameraInfo(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s calibration", path)
	}
	if info == nil {
		return nil, errors.Errorf("device returned no %s calibration", path)
	}
	return info.WithHeader(info.Header), nil
}
