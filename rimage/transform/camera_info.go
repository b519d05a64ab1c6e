package transform

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/ensenso/messages"
)

// StereoPathModel is the calibration of one optical path of a stereo head: the raw camera model,
// the rotation that rectifies it, and the intrinsics of the rectified image.
type StereoPathModel struct {
	Raw PinholeCameraModel `json:"raw"`
	// Rectification rotates raw camera coordinates into the rectified frame. Nil means identity.
	Rectification *mat.Dense `json:"-"`
	// Rectified defaults to the raw intrinsics when nil.
	Rectified *PinholeCameraIntrinsics `json:"rectified"`
	// Baseline is the x offset of this path's optical center from the left path, in meters.
	Baseline float64 `json:"baseline"`
}

// CameraInfo renders the model as a calibration message for the given optical path. The header is
// left empty for the caller to stamp.
func (m *StereoPathModel) CameraInfo(opticalPath string) (*messages.CameraInfo, error) {
	if err := m.Raw.CheckValid(); err != nil {
		return nil, err
	}
	rectified := m.Rectified
	if rectified == nil {
		rectified = m.Raw.PinholeCameraIntrinsics
	}
	if err := rectified.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "rectified intrinsics")
	}

	info := &messages.CameraInfo{
		OpticalPath:     opticalPath,
		Width:           uint32(m.Raw.Width),
		Height:          uint32(m.Raw.Height),
		DistortionModel: messages.DistortionPlumbBob,
		D:               []float64{0, 0, 0, 0, 0},
	}
	switch d := m.Raw.Distortion.(type) {
	case nil:
	case *BrownConrady:
		info.D = d.PlumbBob()
	default:
		return nil, errors.Errorf("cannot express %q distortion as %s", d.ModelType(), messages.DistortionPlumbBob)
	}

	copyDense(info.K[:], m.Raw.GetCameraMatrix())
	rect := m.Rectification
	if rect == nil {
		rect = identity3()
	}
	if r, c := rect.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("rectification must be 3x3 but is %dx%d", r, c)
	}
	copyDense(info.R[:], rect)
	copyDense(info.P[:], rectified.GetProjectionMatrix(m.Baseline))
	return info, nil
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// copyDense writes m into dst in row-major order.
func copyDense(dst []float64, m *mat.Dense) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[i*cols+j] = m.At(i, j)
		}
	}
}

// IntrinsicsFromCameraInfo recovers the raw pinhole model described by a calibration message.
func IntrinsicsFromCameraInfo(info *messages.CameraInfo) (*PinholeCameraModel, error) {
	intrinsics := &PinholeCameraIntrinsics{
		Width:  int(info.Width),
		Height: int(info.Height),
		Fx:     info.K[0],
		Fy:     info.K[4],
		Ppx:    info.K[2],
		Ppy:    info.K[5],
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	distortionType, params, err := distortionFromCameraInfo(info)
	if err != nil {
		return nil, err
	}
	distortion, err := NewDistorter(distortionType, params)
	if err != nil {
		return nil, err
	}
	return &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}, nil
}

// distortionFromCameraInfo maps a calibration message's distortion model onto ours. plumb_bob
// coefficients are ordered k1, k2, p1, p2, k3.
func distortionFromCameraInfo(info *messages.CameraInfo) (DistortionType, []float64, error) {
	switch {
	case info.DistortionModel == "" || len(info.D) == 0:
		return NoDistortionType, nil, nil
	case info.DistortionModel == messages.DistortionPlumbBob:
		if len(info.D) > 5 {
			return "", nil, InvalidDistortionError(
				fmt.Sprintf("%s has 5 coefficients, got %d", messages.DistortionPlumbBob, len(info.D)))
		}
		d := append(append([]float64(nil), info.D...), make([]float64, 5-len(info.D))...)
		return BrownConradyDistortionType, []float64{d[0], d[1], d[4], d[2], d[3]}, nil
	default:
		return DistortionType(info.DistortionModel), info.D, nil
	}
}
