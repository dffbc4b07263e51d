package media

import (
	"bytes"
	"image/jpeg"
)

// ChunkEncoder turns raw frames into bytes of a media container whose
// segments remain valid when concatenated in order.
type ChunkEncoder interface {
	Encode(f Frame) ([]byte, error)
	MimeType() string
}

// mjpegEncoder emits each frame as a standalone JPEG. Concatenated JPEGs
// form a valid MJPEG elementary stream, so chunk boundaries can fall
// anywhere between frames.
type mjpegEncoder struct {
	quality int
}

func NewMJPEGEncoder(quality int) ChunkEncoder {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &mjpegEncoder{quality: quality}
}

func (e *mjpegEncoder) Encode(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *mjpegEncoder) MimeType() string {
	return "video/x-motion-jpeg"
}
