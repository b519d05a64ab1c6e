package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// organizedPointCloud is the slice backed implementation of PointCloud.
type organizedPointCloud struct {
	width, height int
	points        []r3.Vector
	meta          MetaData
	dirty         bool
}

// New returns a width x height cloud where every point starts out invalid.
func New(width, height int) PointCloud {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	points := make([]r3.Vector, width*height)
	for i := range points {
		points[i] = InvalidPoint
	}
	return &organizedPointCloud{width: width, height: height, points: points, meta: NewMetaData()}
}

// NewFromPoints returns an unorganized cloud (height one) holding the given points.
func NewFromPoints(pts []r3.Vector) PointCloud {
	cloud := &organizedPointCloud{width: len(pts), height: 1, points: append([]r3.Vector(nil), pts...)}
	cloud.dirty = true
	return cloud
}

func (cloud *organizedPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *organizedPointCloud) Width() int {
	return cloud.width
}

func (cloud *organizedPointCloud) Height() int {
	return cloud.height
}

func (cloud *organizedPointCloud) MetaData() MetaData {
	if cloud.dirty {
		cloud.meta = NewMetaData()
		for _, p := range cloud.points {
			cloud.meta.Merge(p)
		}
		cloud.dirty = false
	}
	return cloud.meta
}

func (cloud *organizedPointCloud) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= cloud.width || y >= cloud.height {
		return 0, false
	}
	return y*cloud.width + x, true
}

// Set validates the position before setting it in the cloud.
func (cloud *organizedPointCloud) Set(x, y int, p r3.Vector) error {
	i, ok := cloud.index(x, y)
	if !ok {
		return errors.Errorf("point (%d, %d) is outside of the %dx%d cloud", x, y, cloud.width, cloud.height)
	}
	if IsValid(cloud.points[i]) {
		// Overwriting a valid point can shrink the bounds, so recompute lazily.
		cloud.dirty = true
	} else if !cloud.dirty {
		cloud.meta.Merge(p)
	}
	cloud.points[i] = p
	return nil
}

func (cloud *organizedPointCloud) At(x, y int) (r3.Vector, bool) {
	i, ok := cloud.index(x, y)
	if !ok {
		return InvalidPoint, false
	}
	p := cloud.points[i]
	return p, IsValid(p)
}

func (cloud *organizedPointCloud) Iterate(fn func(x, y int, p r3.Vector) bool) {
	for i, p := range cloud.points {
		if !fn(i%cloud.width, i/cloud.width, p) {
			return
		}
	}
}
