package ros

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/ensenso/messages"
)

// Time is a ROS time as written by the bag parser.
type Time struct {
	Secs  int64
	Nsecs int64
}

// Time converts to a time.Time.
func (t Time) Time() time.Time {
	return time.Unix(t.Secs, t.Nsecs).UTC()
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32
	Stamp   Time
	FrameID string `json:"frame_id"`
}

func (h Header) toHeader() messages.Header {
	return messages.Header{Seq: h.Seq, Stamp: h.Stamp.Time(), FrameID: h.FrameID}
}

// ByteArray is a uint8[] field. The bag parser writes those as JSON number arrays rather than
// the base64 strings encoding/json expects for []byte, so both are accepted.
type ByteArray []byte

// UnmarshalJSON decodes a number array or a base64 string.
func (ba *ByteArray) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return err
		}
		*ba = decoded
		return nil
	}
	var values []uint16
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v > 255 {
			return errors.Errorf("uint8 array value %d at %d is out of range", v, i)
		}
		out[i] = byte(v)
	}
	*ba = out
	return nil
}

// ImageMessage is a sensor_msgs/Image record.
type ImageMessage struct {
	Meta Time
	Data struct {
		Header      Header
		Height      uint32
		Width       uint32
		Encoding    string
		IsBigendian uint8 `json:"is_bigendian"`
		Step        uint32
		Data        ByteArray
	}
}

// ToMessage converts the record to an image message.
func (m *ImageMessage) ToMessage() *messages.Image {
	return &messages.Image{
		Header:      m.Data.Header.toHeader(),
		Height:      m.Data.Height,
		Width:       m.Data.Width,
		Encoding:    m.Data.Encoding,
		IsBigEndian: m.Data.IsBigendian != 0,
		Step:        m.Data.Step,
		Data:        m.Data.Data,
	}
}

// CameraInfoMessage is a sensor_msgs/CameraInfo record.
type CameraInfoMessage struct {
	Meta Time
	Data struct {
		Header          Header
		Height          uint32
		Width           uint32
		DistortionModel string `json:"distortion_model"`
		D               []float64
		K               [9]float64
		R               [9]float64
		P               [12]float64
	}
}

// ToMessage converts the record to a calibration message for the given optical path.
func (m *CameraInfoMessage) ToMessage(opticalPath string) *messages.CameraInfo {
	return &messages.CameraInfo{
		Header:          m.Data.Header.toHeader(),
		OpticalPath:     opticalPath,
		Height:          m.Data.Height,
		Width:           m.Data.Width,
		DistortionModel: m.Data.DistortionModel,
		D:               append([]float64(nil), m.Data.D...),
		K:               m.Data.K,
		R:               m.Data.R,
		P:               m.Data.P,
	}
}

// PointCloud2Message is a sensor_msgs/PointCloud2 record.
type PointCloud2Message struct {
	Meta Time
	Data struct {
		Header Header
		Height uint32
		Width  uint32
		Fields []struct {
			Name     string
			Offset   uint32
			Datatype uint8
			Count    uint32
		}
		IsBigendian bool   `json:"is_bigendian"`
		PointStep   uint32 `json:"point_step"`
		RowStep     uint32 `json:"row_step"`
		Data        ByteArray
		IsDense     bool `json:"is_dense"`
	}
}

// ToMessage converts the record to a point cloud message.
func (m *PointCloud2Message) ToMessage() *messages.PointCloud2 {
	fields := make([]messages.PointField, 0, len(m.Data.Fields))
	for _, f := range m.Data.Fields {
		fields = append(fields, messages.PointField{Name: f.Name, Offset: f.Offset, Datatype: f.Datatype, Count: f.Count})
	}
	return &messages.PointCloud2{
		Header:      m.Data.Header.toHeader(),
		Height:      m.Data.Height,
		Width:       m.Data.Width,
		Fields:      fields,
		IsBigEndian: m.Data.IsBigendian,
		PointStep:   m.Data.PointStep,
		RowStep:     m.Data.RowStep,
		Data:        m.Data.Data,
		IsDense:     m.Data.IsDense,
	}
}
