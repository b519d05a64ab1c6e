package utils

import "strings"

const (
	// MimeTypeJPEG is regular jpgs.
	MimeTypeJPEG = "image/jpeg"

	// MimeTypePNG is regular pngs.
	MimeTypePNG = "image/png"

	// MimeTypeQOI is for .qoi "Quite OK Image" for lossless, fast encoding/decoding.
	MimeTypeQOI = "image/qoi"

	// MimeTypePPM is for binary portable pixmaps.
	MimeTypePPM = "image/x-portable-pixmap"

	// MimeTypeRawMono8 is an uncompressed single channel 8 bit image.
	MimeTypeRawMono8 = "image/raw-mono8"

	// MimeTypeRawBGR8 is an uncompressed interleaved 3 channel 8 bit image in BGR order.
	MimeTypeRawBGR8 = "image/raw-bgr8"

	// MimeTypePCD is for .pcd pointcloud files.
	MimeTypePCD = "pointcloud/pcd"
)

// FormatFromMimeType returns the short format name ("png", "jpeg", ...) for a mime type.
func FormatFromMimeType(mimeType string) string {
	if mimeType == MimeTypePPM {
		return "ppm"
	}
	_, format, found := strings.Cut(mimeType, "/")
	if !found {
		return mimeType
	}
	return format
}

// MimeTypeFromFormat is the inverse of FormatFromMimeType for the compressed image formats.
func MimeTypeFromFormat(format string) (string, bool) {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return MimeTypeJPEG, true
	case "png":
		return MimeTypePNG, true
	case "qoi":
		return MimeTypeQOI, true
	case "ppm", "portable-pixmap":
		return MimeTypePPM, true
	default:
		return "", false
	}
}
