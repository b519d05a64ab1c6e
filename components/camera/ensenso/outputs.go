package ensenso

import (
	"go.viam.com/ensenso/bus"
	"go.viam.com/ensenso/messages"
)

// Output topics, relative to the driver's namespace.
const (
	TopicLeftRaw   = "left/image_raw"
	TopicRightRaw  = "right/image_raw"
	TopicLeftRect  = "left/image_rect"
	TopicRightRect = "right/image_rect"
	TopicPoints    = "depth/points"
)

// AdvertiseOutputs advertises the five output topics on b. Only the point cloud is latched.
// A non-empty compressedFormat also publishes compressed copies of the raw images.
func AdvertiseOutputs(b *bus.Bus, compressedFormat string) (Outputs, error) {
	leftRaw, err := bus.AdvertiseCamera(b, TopicLeftRaw, compressedFormat)
	if err != nil {
		return Outputs{}, err
	}
	rightRaw, err := bus.AdvertiseCamera(b, TopicRightRaw, compressedFormat)
	if err != nil {
		return Outputs{}, err
	}
	leftRect, err := bus.Advertise[*messages.Image](b, TopicLeftRect, false)
	if err != nil {
		return Outputs{}, err
	}
	rightRect, err := bus.Advertise[*messages.Image](b, TopicRightRect, false)
	if err != nil {
		return Outputs{}, err
	}
	points, err := bus.Advertise[*messages.PointCloud2](b, TopicPoints, true)
	if err != nil {
		return Outputs{}, err
	}
	return Outputs{
		LeftRaw:   leftRaw,
		RightRaw:  rightRaw,
		LeftRect:  leftRect,
		RightRect: rightRect,
		Points:    points,
	}, nil
}
