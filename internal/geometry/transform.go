package geometry

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// DefaultTargetWidth bounds upload payloads regardless of camera resolution
	DefaultTargetWidth = 1200
	// DefaultJPEGQuality matches a 0.8 compress factor
	DefaultJPEGQuality = 80

	processedContentType = "image/jpeg"
)

// Photo is a raw captured photo handle
type Photo struct {
	URI         string
	Data        []byte
	ContentType string
}

// Processed is the cropped, resized and re-encoded image ready for upload
type Processed struct {
	Data        []byte
	ContentType string
	Crop        CropRect
	Width       int
	Height      int
}

// Transformer crops a photo to the guide frame, downscales it and re-encodes it
type Transformer struct {
	targetWidth int
	quality     int
}

// NewTransformer creates a Transformer. Non-positive values fall back to the defaults.
func NewTransformer(targetWidth, quality int) *Transformer {
	if targetWidth <= 0 {
		targetWidth = DefaultTargetWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Transformer{targetWidth: targetWidth, quality: quality}
}

// TargetWidth returns the fixed output width
func (t *Transformer) TargetWidth() int {
	return t.targetWidth
}

// Prepare decodes the photo, computes the crop for the frame against the decoded
// dimensions, then crops, resizes and encodes it as JPEG.
func (t *Transformer) Prepare(photo Photo, frame *CaptureFrame, screen ScreenContext) (processed *Processed, err error) {
	if frame == nil {
		return nil, ErrGeometryUnavailable
	}

	// Decoders for camera formats are not trusted to never panic
	defer func() {
		if r := recover(); r != nil {
			processed = nil
			err = fmt.Errorf("transforming photo: %v", r)
		}
	}()

	img, err := decodePhoto(photo.Data, photo.ContentType)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	crop, err := ComputeCrop(frame, image.Pt(bounds.Dx(), bounds.Dy()), screen)
	if err != nil {
		return nil, err
	}

	rect := crop.Rectangle(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("crop %+v is outside the photo bounds %v", crop, bounds)
	}

	out := imaging.Crop(img, rect)
	out = imaging.Resize(out, t.targetWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(t.quality)); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	size := out.Bounds().Size()
	return &Processed{
		Data:        buf.Bytes(),
		ContentType: processedContentType,
		Crop:        crop,
		Width:       size.X,
		Height:      size.Y,
	}, nil
}
