package ensenso_test

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/ensenso/components/camera/ensenso"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/testutils/inject"
	"go.viam.com/ensenso/utils"
)

func TestDeviceRegistry(t *testing.T) {
	const model = "registry-test"
	var gotAttrs utils.AttributeMap
	ensenso.RegisterDevice(model, func(
		ctx context.Context, attrs utils.AttributeMap, logger logging.Logger,
	) (ensenso.Device, error) {
		gotAttrs = attrs
		return &inject.Device{}, nil
	})
	test.That(t, ensenso.RegisteredModels(), test.ShouldContain, model)

	device, err := ensenso.NewDevice(context.Background(), model, utils.AttributeMap{"a": 1}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, device, test.ShouldNotBeNil)
	test.That(t, gotAttrs, test.ShouldResemble, utils.AttributeMap{"a": 1})

	_, err = ensenso.NewDevice(context.Background(), "nope", nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "nope")

	test.That(t, func() {
		ensenso.RegisterDevice(model, nil)
	}, test.ShouldPanic)
}
