package rimage

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/ensenso/messages"
)

// ErrConversion is returned when a pixel buffer's declared size does not match its data.
var ErrConversion = errors.New("pixel buffer conversion failed")

// PixelBuffer is an image as the device delivers it. Data is only valid for the duration of the
// capture callback it came with.
type PixelBuffer struct {
	Width    int
	Height   int
	Encoding string
	Data     []byte
}

// ToImageMsg converts a device buffer into an Image message. The pixel data is always copied into
// a new slice sized for the target format, so the result never aliases buf.Data. Trailing bytes
// beyond width*height*channels are ignored.
func ToImageMsg(buf PixelBuffer, header messages.Header) (*messages.Image, error) {
	format, _ := ClassifyEncoding(buf.Encoding)
	if buf.Width <= 0 || buf.Height <= 0 {
		return nil, errors.Wrapf(ErrConversion, "invalid dimensions %dx%d", buf.Width, buf.Height)
	}
	channels := Channels(format)
	if int64(buf.Width) > math.MaxUint32/int64(channels) || int64(buf.Height) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrConversion, "dimensions %dx%d too large", buf.Width, buf.Height)
	}
	step := buf.Width * channels
	// Compare rows rather than bytes so that width*height cannot overflow.
	if buf.Height > len(buf.Data)/step {
		return nil, errors.Wrapf(ErrConversion,
			"%dx%d %s needs %d bytes but buffer has %d",
			buf.Width, buf.Height, format, int64(step)*int64(buf.Height), len(buf.Data))
	}
	size := step * buf.Height

	data := make([]byte, size)
	copy(data, buf.Data[:size])
	return &messages.Image{
		Header:   header,
		Height:   uint32(buf.Height),
		Width:    uint32(buf.Width),
		Encoding: format,
		Step:     uint32(step),
		Data:     data,
	}, nil
}
