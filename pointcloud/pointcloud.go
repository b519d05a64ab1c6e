// Package pointcloud defines the organized point cloud the stereo head produces along with the
// formats it is published and stored in.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	// ValidPoints counts points that are not NaN.
	ValidPoints int

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData creates a new MetaData whose bounds are empty.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the bounds and count to include the given point. Invalid points are ignored.
func (meta *MetaData) Merge(v r3.Vector) {
	if !IsValid(v) {
		return
	}
	meta.ValidPoints++
	meta.MinX = math.Min(meta.MinX, v.X)
	meta.MinY = math.Min(meta.MinY, v.Y)
	meta.MinZ = math.Min(meta.MinZ, v.Z)
	meta.MaxX = math.Max(meta.MaxX, v.X)
	meta.MaxY = math.Max(meta.MaxY, v.Y)
	meta.MaxZ = math.Max(meta.MaxZ, v.Z)
}

// PointCloud is an ordered grid of 3D points in meters in the camera's optical frame. Pixels the
// sensor could not triangulate hold the invalid point.
type PointCloud interface {
	// Size returns the number of points in the cloud, valid or not.
	Size() int

	// Width and Height give the grid dimensions. Unorganized clouds have a height of one.
	Width() int
	Height() int

	// MetaData returns meta data
	MetaData() MetaData

	// Set places the given point at column x, row y.
	Set(x, y int, p r3.Vector) error

	// At returns the point at column x, row y, and whether it is valid.
	At(x, y int) (r3.Vector, bool)

	// Iterate calls fn for every point in row-major order. If fn returns false, iteration
	// stops.
	Iterate(fn func(x, y int, p r3.Vector) bool)
}

// InvalidPoint marks a pixel without depth.
var InvalidPoint = r3.Vector{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}

// IsValid reports whether every coordinate of v is finite.
func IsValid(v r3.Vector) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}
