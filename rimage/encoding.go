package rimage

import "go.viam.com/ensenso/messages"

// Source encoding tags reported by the device SDK for its pixel buffers.
const (
	SourceEncodingMono8 = "CV_8UC1"
	SourceEncodingBGR8  = "CV_8UC3"
)

// ClassifyEncoding maps a device encoding tag to the published pixel format. Only
// SourceEncodingBGR8 is three channel; every other tag is mono8. `known` is false when the tag
// was neither of the two the device is documented to emit, so callers can report the fallback.
func ClassifyEncoding(sourceEncoding string) (format string, known bool) {
	switch sourceEncoding {
	case SourceEncodingBGR8:
		return messages.EncodingBGR8, true
	case SourceEncodingMono8:
		return messages.EncodingMono8, true
	default:
		return messages.EncodingMono8, false
	}
}

// Channels returns the number of 8 bit channels of a published pixel format.
func Channels(format string) int {
	if format == messages.EncodingBGR8 {
		return 3
	}
	return 1
}
