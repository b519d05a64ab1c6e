// Package messages defines the messages the ensenso driver publishes. They mirror the shapes of
// the ROS sensor_msgs types so recordings and consumers can stay interchangeable.
package messages

import "time"

// Image encodings produced by the driver.
const (
	EncodingMono8 = "mono8"
	EncodingBGR8  = "bgr8"
)

// Distortion models.
const (
	DistortionPlumbBob = "plumb_bob"
)

// Message is implemented by everything that can be carried on the bus.
type Message interface {
	MessageType() string
	GetHeader() Header
}

// Header is the metadata shared by all published messages.
type Header struct {
	Seq     uint32    `json:"seq"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Image is an uncompressed image.
type Image struct {
	Header      Header `json:"header"`
	Height      uint32 `json:"height"`
	Width       uint32 `json:"width"`
	Encoding    string `json:"encoding"`
	IsBigEndian bool   `json:"is_bigendian"`
	// Step is the length of a row in bytes.
	Step uint32 `json:"step"`
	Data []byte `json:"data"`
}

// MessageType returns "sensor_msgs/Image".
func (img *Image) MessageType() string { return "sensor_msgs/Image" }

// GetHeader returns the header.
func (img *Image) GetHeader() Header { return img.Header }

// CompressedImage is an image encoded with a standard format.
type CompressedImage struct {
	Header Header `json:"header"`
	// Format is the short format name, e.g. "png".
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

// MessageType returns "sensor_msgs/CompressedImage".
func (img *CompressedImage) MessageType() string { return "sensor_msgs/CompressedImage" }

// GetHeader returns the header.
func (img *CompressedImage) GetHeader() Header { return img.Header }

// CameraInfo is the calibration of one optical path.
type CameraInfo struct {
	Header Header `json:"header"`
	// OpticalPath is "left" or "right".
	OpticalPath     string      `json:"optical_path"`
	Height          uint32      `json:"height"`
	Width           uint32      `json:"width"`
	DistortionModel string      `json:"distortion_model"`
	D               []float64   `json:"d"`
	K               [9]float64  `json:"k"`
	R               [9]float64  `json:"r"`
	P               [12]float64 `json:"p"`
}

// MessageType returns "sensor_msgs/CameraInfo".
func (ci *CameraInfo) MessageType() string { return "sensor_msgs/CameraInfo" }

// GetHeader returns the header.
func (ci *CameraInfo) GetHeader() Header { return ci.Header }

// WithHeader returns a copy of the calibration carrying the given header.
func (ci *CameraInfo) WithHeader(header Header) *CameraInfo {
	cp := *ci
	cp.Header = header
	cp.D = append([]float64(nil), ci.D...)
	return &cp
}

// PointField datatypes.
const (
	PointFieldInt8    uint8 = 1
	PointFieldUint8   uint8 = 2
	PointFieldInt16   uint8 = 3
	PointFieldUint16  uint8 = 4
	PointFieldInt32   uint8 = 5
	PointFieldUint32  uint8 = 6
	PointFieldFloat32 uint8 = 7
	PointFieldFloat64 uint8 = 8
)

// PointField describes one channel of a PointCloud2 point.
type PointField struct {
	Name     string `json:"name"`
	Offset   uint32 `json:"offset"`
	Datatype uint8  `json:"datatype"`
	Count    uint32 `json:"count"`
}

// PointCloud2 is a packed, possibly organized, point cloud.
type PointCloud2 struct {
	Header      Header       `json:"header"`
	Height      uint32       `json:"height"`
	Width       uint32       `json:"width"`
	Fields      []PointField `json:"fields"`
	IsBigEndian bool         `json:"is_bigendian"`
	PointStep   uint32       `json:"point_step"`
	RowStep     uint32       `json:"row_step"`
	Data        []byte       `json:"data"`
	IsDense     bool         `json:"is_dense"`
}

// MessageType returns "sensor_msgs/PointCloud2".
func (pc *PointCloud2) MessageType() string { return "sensor_msgs/PointCloud2" }

// GetHeader returns the header.
func (pc *PointCloud2) GetHeader() Header { return pc.Header }
