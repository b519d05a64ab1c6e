package rimage

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"

	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/utils"
)

// ImageFromMsg wraps an Image message as a Go image. mono8 becomes *image.Gray and bgr8 becomes
// *image.RGBA with the channels reordered.
func ImageFromMsg(msg *messages.Image) (image.Image, error) {
	width, height := int(msg.Width), int(msg.Height)
	channels := Channels(msg.Encoding)
	step := int(msg.Step)
	if step == 0 {
		step = width * channels
	}
	if width <= 0 || height <= 0 || step < width*channels || len(msg.Data) < step*(height-1)+width*channels {
		return nil, errors.Wrapf(ErrConversion, "image message %dx%d step %d has %d bytes",
			width, height, step, len(msg.Data))
	}

	switch msg.Encoding {
	case messages.EncodingMono8:
		gray := image.NewGray(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+width], msg.Data[y*step:])
		}
		return gray, nil
	case messages.EncodingBGR8:
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			row := msg.Data[y*step:]
			for x := 0; x < width; x++ {
				i := y*rgba.Stride + x*4
				rgba.Pix[i+0] = row[x*3+2]
				rgba.Pix[i+1] = row[x*3+1]
				rgba.Pix[i+2] = row[x*3+0]
				rgba.Pix[i+3] = 0xff
			}
		}
		return rgba, nil
	default:
		return nil, errors.Errorf("do not know how to convert image encoding %q", msg.Encoding)
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

// EncodeImage encodes the given image into bytes of the given mime type.
func EncodeImage(ctx context.Context, img image.Image, mimeType string) ([]byte, error) {
	var buf bytes.Buffer
	switch mimeType {
	case utils.MimeTypePNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case utils.MimeTypeJPEG:
		if err := jpeg.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	case utils.MimeTypeQOI:
		if err := qoi.Encode(&buf, img); err != nil {
			return nil, err
		}
	case utils.MimeTypePPM:
		if err := ppm.Encode(&buf, toRGBA(img)); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("do not know how to encode %q", mimeType)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes bytes of the given mime type into an image.
func DecodeImage(ctx context.Context, data []byte, mimeType string) (image.Image, error) {
	r := bytes.NewReader(data)
	switch mimeType {
	case utils.MimeTypePNG:
		return png.Decode(r)
	case utils.MimeTypeJPEG:
		return jpeg.Decode(r)
	case utils.MimeTypeQOI:
		return qoi.Decode(r)
	case utils.MimeTypePPM:
		return ppm.Decode(r)
	default:
		return nil, errors.Errorf("do not know how to decode %q", mimeType)
	}
}

// CompressImageMsg encodes an Image message with the given short format ("png", "jpeg", "qoi" or
// "ppm"). The header is carried over unchanged.
func CompressImageMsg(ctx context.Context, msg *messages.Image, format string) (*messages.CompressedImage, error) {
	mimeType, ok := utils.MimeTypeFromFormat(format)
	if !ok {
		return nil, errors.Errorf("unsupported compressed image format %q", format)
	}
	img, err := ImageFromMsg(msg)
	if err != nil {
		return nil, err
	}
	data, err := EncodeImage(ctx, img, mimeType)
	if err != nil {
		return nil, err
	}
	return &messages.CompressedImage{
		Header: msg.Header,
		Format: utils.FormatFromMimeType(mimeType),
		Data:   data,
	}, nil
}
