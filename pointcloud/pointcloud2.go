package pointcloud

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/ensenso/messages"
)

const (
	float32Size = 4
	xyzStep     = 3 * float32Size
)

// XYZFields are the fields of a packed xyz cloud.
var XYZFields = []messages.PointField{
	{Name: "x", Offset: 0, Datatype: messages.PointFieldFloat32, Count: 1},
	{Name: "y", Offset: float32Size, Datatype: messages.PointFieldFloat32, Count: 1},
	{Name: "z", Offset: 2 * float32Size, Datatype: messages.PointFieldFloat32, Count: 1},
}

// ToPointCloud2 packs the cloud as little endian float32 x, y, z triples. Invalid points are
// written as NaN and make the message not dense.
func ToPointCloud2(cloud PointCloud, header messages.Header) *messages.PointCloud2 {
	width, height := cloud.Width(), cloud.Height()
	data := make([]byte, cloud.Size()*xyzStep)
	dense := true
	cloud.Iterate(func(x, y int, p r3.Vector) bool {
		if !IsValid(p) {
			dense = false
			p = InvalidPoint
		}
		off := (y*width + x) * xyzStep
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(data[off+float32Size:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(data[off+2*float32Size:], math.Float32bits(float32(p.Z)))
		return true
	})

	return &messages.PointCloud2{
		Header:    header,
		Height:    uint32(height),
		Width:     uint32(width),
		Fields:    append([]messages.PointField(nil), XYZFields...),
		PointStep: xyzStep,
		RowStep:   uint32(width * xyzStep),
		Data:      data,
		IsDense:   dense,
	}
}

// FromPointCloud2 unpacks a message holding float32 x, y and z fields in any order or stride.
func FromPointCloud2(msg *messages.PointCloud2) (PointCloud, error) {
	if msg.IsBigEndian {
		return nil, errors.New("big endian point clouds are not supported")
	}
	offsets := map[string]uint32{}
	for _, f := range msg.Fields {
		if f.Name != "x" && f.Name != "y" && f.Name != "z" {
			continue
		}
		if f.Datatype != messages.PointFieldFloat32 {
			return nil, errors.Errorf("field %q has datatype %d, expected float32", f.Name, f.Datatype)
		}
		offsets[f.Name] = f.Offset
	}
	for _, name := range []string{"x", "y", "z"} {
		off, ok := offsets[name]
		if !ok {
			return nil, errors.Errorf("point cloud has no %q field", name)
		}
		if off+float32Size > msg.PointStep {
			return nil, errors.Errorf("field %q at offset %d does not fit in point step %d", name, off, msg.PointStep)
		}
	}
	width, height := int(msg.Width), int(msg.Height)
	if msg.RowStep < msg.Width*msg.PointStep || len(msg.Data) < int(msg.RowStep)*height {
		return nil, errors.Errorf("point cloud data of %d bytes is too short for %dx%d points with row step %d",
			len(msg.Data), width, height, msg.RowStep)
	}

	readField := func(point []byte, name string) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(point[offsets[name]:])))
	}
	cloud := New(width, height)
	for y := 0; y < height; y++ {
		row := msg.Data[y*int(msg.RowStep):]
		for x := 0; x < width; x++ {
			point := row[x*int(msg.PointStep):]
			p := r3.Vector{X: readField(point, "x"), Y: readField(point, "y"), Z: readField(point, "z")}
			if err := cloud.Set(x, y, p); err != nil {
				return nil, err
			}
		}
	}
	return cloud, nil
}
