package bus

import (
	"context"
	"path"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/rimage"
	"go.viam.com/ensenso/utils"
)

// CameraInfoTopic returns the calibration topic that accompanies an image topic, e.g.
// "left/image_raw" -> "left/camera_info".
func CameraInfoTopic(imageTopic string) string {
	return path.Join(path.Dir(imageTopic), "camera_info")
}

// CompressedTopic returns the compressed variant of an image topic.
func CompressedTopic(imageTopic string) string {
	return imageTopic + "/compressed"
}

// CameraPublisher publishes an image together with the calibration it was taken with.
type CameraPublisher struct {
	image            *Publisher[*messages.Image]
	info             *Publisher[*messages.CameraInfo]
	compressed       *Publisher[*messages.CompressedImage]
	compressedFormat string
}

// AdvertiseCamera advertises imageTopic, its camera_info sibling and, when compressedFormat is
// not empty, a compressed copy of the image.
func AdvertiseCamera(b *Bus, imageTopic, compressedFormat string) (*CameraPublisher, error) {
	image, err := Advertise[*messages.Image](b, imageTopic, false)
	if err != nil {
		return nil, err
	}
	info, err := Advertise[*messages.CameraInfo](b, CameraInfoTopic(imageTopic), false)
	if err != nil {
		return nil, err
	}
	cp := &CameraPublisher{image: image, info: info}
	if compressedFormat == "" {
		return cp, nil
	}
	if _, ok := utils.MimeTypeFromFormat(compressedFormat); !ok {
		return nil, errors.Errorf("unsupported compressed image format %q", compressedFormat)
	}
	cp.compressed, err = Advertise[*messages.CompressedImage](b, CompressedTopic(imageTopic), false)
	if err != nil {
		return nil, err
	}
	cp.compressedFormat = compressedFormat
	return cp, nil
}

// Topic returns the image topic.
func (cp *CameraPublisher) Topic() string {
	return cp.image.Topic()
}

// Publish publishes the image and a copy of info stamped with the image's header. A failure on
// one of the topics does not stop the others.
func (cp *CameraPublisher) Publish(img *messages.Image, info *messages.CameraInfo) error {
	if img == nil || info == nil {
		return errors.Wrapf(ErrPublishFailed, "%q needs both an image and its calibration", cp.Topic())
	}
	err := multierr.Combine(
		cp.image.Publish(img),
		cp.info.Publish(info.WithHeader(img.Header)),
	)
	if cp.compressed != nil && cp.compressed.NumSubscribers() > 0 {
		compressed, cerr := rimage.CompressImageMsg(context.Background(), img, cp.compressedFormat)
		if cerr == nil {
			cerr = cp.compressed.Publish(compressed)
		}
		err = multierr.Combine(err, cerr)
	}
	if err != nil {
		return errors.Wrap(multierr.Combine(ErrPublishFailed, err), cp.Topic())
	}
	return nil
}
