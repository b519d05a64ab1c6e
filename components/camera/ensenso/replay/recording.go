package replay

import (
	"path"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"

	"go.viam.com/ensenso/bus"
	"go.viam.com/ensenso/components/camera/ensenso"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/rimage"
	"go.viam.com/ensenso/ros"
)

// Frame is one recorded capture. Cloud may be nil.
type Frame struct {
	LeftRaw   *messages.Image
	RightRaw  *messages.Image
	LeftRect  *messages.Image
	RightRect *messages.Image
	Cloud     *messages.PointCloud2
}

// Recording is what a bag recorded from the driver's topics holds.
type Recording struct {
	Frames      []Frame
	Calibration map[ensenso.OpticalPath]*messages.CameraInfo
}

// LoadRecording reads the driver's topics under namespace from a bag. Messages of the five
// outputs are paired up by their order in the bag; the first calibration of each path is used.
func LoadRecording(rb *rosbag.RosBag, namespace string) (*Recording, error) {
	topic := func(name string) string { return path.Join("/", namespace, name) }
	imageTopics := []string{
		topic(ensenso.TopicLeftRaw), topic(ensenso.TopicRightRaw),
		topic(ensenso.TopicLeftRect), topic(ensenso.TopicRightRect),
	}
	infoTopics := map[ensenso.OpticalPath]string{
		ensenso.Left:  topic(bus.CameraInfoTopic(ensenso.TopicLeftRaw)),
		ensenso.Right: topic(bus.CameraInfoTopic(ensenso.TopicRightRaw)),
	}
	cloudTopic := topic(ensenso.TopicPoints)

	all := append([]string{cloudTopic, infoTopics[ensenso.Left], infoTopics[ensenso.Right]}, imageTopics...)
	parsed, err := ros.ParseTopics(rb, all)
	if err != nil {
		return nil, err
	}

	rec := &Recording{Calibration: map[ensenso.OpticalPath]*messages.CameraInfo{}}
	for opticalPath, name := range infoTopics {
		buf, ok := parsed[name]
		if !ok {
			return nil, errors.Errorf("bag has no calibration on %s", name)
		}
		infos, err := ros.DecodeMessages[ros.CameraInfoMessage](buf)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		if len(infos) == 0 {
			return nil, errors.Errorf("bag has no calibration on %s", name)
		}
		rec.Calibration[opticalPath] = infos[0].ToMessage(opticalPath.String())
	}

	images := make([][]*messages.Image, len(imageTopics))
	frames := -1
	for i, name := range imageTopics {
		buf, ok := parsed[name]
		if !ok {
			return nil, errors.Errorf("bag has no images on %s", name)
		}
		records, err := ros.DecodeMessages[ros.ImageMessage](buf)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		for j := range records {
			images[i] = append(images[i], records[j].ToMessage())
		}
		if frames < 0 || len(records) < frames {
			frames = len(records)
		}
	}

	var clouds []*messages.PointCloud2
	if buf, ok := parsed[cloudTopic]; ok {
		records, err := ros.DecodeMessages[ros.PointCloud2Message](buf)
		if err != nil {
			return nil, errors.Wrap(err, cloudTopic)
		}
		for j := range records {
			clouds = append(clouds, records[j].ToMessage())
		}
	}

	for i := 0; i < frames; i++ {
		frame := Frame{
			LeftRaw:   images[0][i],
			RightRaw:  images[1][i],
			LeftRect:  images[2][i],
			RightRect: images[3][i],
		}
		if i < len(clouds) {
			frame.Cloud = clouds[i]
		}
		rec.Frames = append(rec.Frames, frame)
	}
	if len(rec.Frames) == 0 {
		return nil, errors.New("bag has no complete frames")
	}
	return rec, nil
}

// sourceEncoding is the device tag that would have produced an image of the given encoding.
func sourceEncoding(encoding string) string {
	switch encoding {
	case messages.EncodingMono8:
		return rimage.SourceEncodingMono8
	case messages.EncodingBGR8:
		return rimage.SourceEncodingBGR8
	default:
		return encoding
	}
}

// pixelBuffer turns a recorded image back into a device buffer, dropping row padding.
func pixelBuffer(img *messages.Image) (rimage.PixelBuffer, error) {
	rowBytes := int(img.Width) * rimage.Channels(img.Encoding)
	if int(img.Step) < rowBytes || len(img.Data) < int(img.Step)*int(img.Height) {
		return rimage.PixelBuffer{}, errors.Errorf("recorded %dx%d %s image has step %d and %d bytes",
			img.Width, img.Height, img.Encoding, img.Step, len(img.Data))
	}
	data := make([]byte, 0, rowBytes*int(img.Height))
	for row := 0; row < int(img.Height); row++ {
		start := row * int(img.Step)
		data = append(data, img.Data[start:start+rowBytes]...)
	}
	return rimage.PixelBuffer{
		Width:    int(img.Width),
		Height:   int(img.Height),
		Encoding: sourceEncoding(img.Encoding),
		Data:     data,
	}, nil
}

// bundle rebuilds the capture a frame was published from.
func (f Frame) bundle() (ensenso.CaptureBundle, error) {
	var b ensenso.CaptureBundle
	var err error
	for _, conv := range []struct {
		dst *rimage.PixelBuffer
		src *messages.Image
	}{
		{&b.Raw.Left, f.LeftRaw},
		{&b.Raw.Right, f.RightRaw},
		{&b.Rectified.Left, f.LeftRect},
		{&b.Rectified.Right, f.RightRect},
	} {
		if *conv.dst, err = pixelBuffer(conv.src); err != nil {
			return ensenso.CaptureBundle{}, err
		}
	}
	if f.Cloud != nil {
		if b.Cloud, err = pointcloud.FromPointCloud2(f.Cloud); err != nil {
			return ensenso.CaptureBundle{}, err
		}
	}
	b.Timestamp = f.LeftRaw.Header.Stamp
	return b, nil
}
