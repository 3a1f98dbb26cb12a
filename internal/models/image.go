package models

import "net/http"

// Image is an optional binary image payload. The zero value is the absent image.
type Image struct {
	data []byte
}

// NewImage wraps raw bytes. Nil and empty slices both yield the absent image.
func NewImage(data []byte) Image {
	if len(data) == 0 {
		return Image{}
	}
	return Image{data: data}
}

// Present reports whether the image carries any bytes.
func (i Image) Present() bool {
	return len(i.data) > 0
}

// Bytes returns the raw payload, or nil when absent.
func (i Image) Bytes() []byte {
	return i.data
}

// Len returns the payload size in bytes.
func (i Image) Len() int {
	return len(i.data)
}

// MediaType sniffs the payload content type.
func (i Image) MediaType() string {
	if !i.Present() {
		return ""
	}
	return http.DetectContentType(i.data)
}
