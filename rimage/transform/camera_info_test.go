package transform

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/ensenso/messages"
)

func testIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 610, Ppx: 320, Ppy: 240}
}

func TestCheckValid(t *testing.T) {
	test.That(t, testIntrinsics().CheckValid(), test.ShouldBeNil)

	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	bad := testIntrinsics()
	bad.Fx = 0
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Invalid focal length Fx")

	bad = testIntrinsics()
	bad.Width = 0
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Invalid size")
}

func TestPixelPointRoundTrip(t *testing.T) {
	intrinsics := testIntrinsics()
	pt := intrinsics.PixelToPoint(400, 100, 2)
	test.That(t, pt.Z, test.ShouldEqual, 2.)
	x, y := intrinsics.PointToPixel(pt)
	test.That(t, x, test.ShouldEqual, 400.)
	test.That(t, y, test.ShouldEqual, 100.)

	x, y = intrinsics.PointToPixel(r3.Vector{X: 1, Y: 1, Z: 0})
	test.That(t, x, test.ShouldEqual, -1.)
	test.That(t, y, test.ShouldEqual, -1.)
}

func TestProjectionMatrix(t *testing.T) {
	p := testIntrinsics().GetProjectionMatrix(0.1)
	expected := mat.NewDense(3, 4, []float64{
		600, 0, 320, -60,
		0, 610, 240, 0,
		0, 0, 1, 0,
	})
	test.That(t, mat.EqualApprox(p, expected, 1e-9), test.ShouldBeTrue)
}

func TestStereoPathCameraInfo(t *testing.T) {
	model := &StereoPathModel{
		Raw: PinholeCameraModel{
			PinholeCameraIntrinsics: testIntrinsics(),
			Distortion:              &BrownConrady{RadialK1: 0.1, RadialK2: 0.2, RadialK3: 0.3, TangentialP1: 0.01, TangentialP2: 0.02},
		},
		Baseline: 0.1,
	}

	info, err := model.CameraInfo("right")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.OpticalPath, test.ShouldEqual, "right")
	test.That(t, info.Width, test.ShouldEqual, uint32(640))
	test.That(t, info.Height, test.ShouldEqual, uint32(480))
	test.That(t, info.DistortionModel, test.ShouldEqual, messages.DistortionPlumbBob)
	test.That(t, info.D, test.ShouldResemble, []float64{0.1, 0.2, 0.01, 0.02, 0.3})
	test.That(t, info.K, test.ShouldResemble, [9]float64{600, 0, 320, 0, 610, 240, 0, 0, 1})
	test.That(t, info.R, test.ShouldResemble, [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, info.P, test.ShouldResemble, [12]float64{600, 0, 320, -60, 0, 610, 240, 0, 0, 0, 1, 0})

	back, err := IntrinsicsFromCameraInfo(info)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.PinholeCameraIntrinsics, test.ShouldResemble, testIntrinsics())
	test.That(t, back.Distortion.Parameters(), test.ShouldResemble, model.Raw.Distortion.Parameters())

	info.D = nil
	back, err = IntrinsicsFromCameraInfo(info)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Distortion, test.ShouldBeNil)

	info.DistortionModel = "equidistant"
	info.D = []float64{0.1, 0, 0, 0}
	_, err = IntrinsicsFromCameraInfo(info)
	test.That(t, err, test.ShouldNotBeNil)

	info.DistortionModel = messages.DistortionPlumbBob
	info.D = make([]float64, 8)
	_, err = IntrinsicsFromCameraInfo(info)
	test.That(t, err, test.ShouldNotBeNil)

	model.Rectification = mat.NewDense(2, 2, nil)
	_, err = model.CameraInfo("right")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = (&StereoPathModel{}).CameraInfo("left")
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestBrownConrady(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, 0, 0, 0, 0})

	// The optical axis is a fixed point of every distortion.
	x, y := bc.Transform(0, 0)
	test.That(t, x, test.ShouldEqual, 0.)
	test.That(t, y, test.ShouldEqual, 0.)

	// Positive k1 pushes points outward.
	x, y = bc.Transform(0.5, 0)
	test.That(t, x, test.ShouldAlmostEqual, 0.5*(1+0.1*0.25))
	test.That(t, y, test.ShouldEqual, 0.)

	_, err = NewBrownConrady(make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)

	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1, 0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	d, err = NewDistorter(NoDistortionType, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldBeNil)

	_, err = NewDistorter("fisheye", nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDistortionMap(t *testing.T) {
	model := &PinholeCameraModel{PinholeCameraIntrinsics: testIntrinsics()}
	x, y := model.DistortionMap()(10, 20)
	test.That(t, x, test.ShouldEqual, 10.)
	test.That(t, y, test.ShouldEqual, 20.)

	model.Distortion = &BrownConrady{RadialK1: 0.2}
	x, y = model.DistortionMap()(320, 240)
	test.That(t, x, test.ShouldAlmostEqual, 320.)
	test.That(t, y, test.ShouldAlmostEqual, 240.)
	x, _ = model.DistortionMap()(620, 240)
	test.That(t, x, test.ShouldBeGreaterThan, 620.)
}
