package geometry

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func encodePNG(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Transformer", func() {
	var (
		transformer *Transformer
		photo       Photo
		frame       *CaptureFrame
		screen      ScreenContext
		processed   *Processed
		err         error
	)

	BeforeEach(func() {
		transformer = NewTransformer(0, 0)
		photo = Photo{URI: "file:///tmp/photo.png", Data: encodePNG(400, 800), ContentType: "image/png"}
		frame = &CaptureFrame{X: 10, Y: 10, Width: 100, Height: 200}
		screen = ScreenContext{ViewportWidth: 200}
	})

	JustBeforeEach(func() {
		processed, err = transformer.Prepare(photo, frame, screen)
	})

	When("the photo is a valid image", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should report the crop in photo pixels", func() {
			Expect(processed.Crop).To(Equal(CropRect{X: 20, Y: 20, Width: 200, Height: 400}))
		})

		It("should resize to the target width preserving aspect ratio", func() {
			Expect(processed.Width).To(Equal(DefaultTargetWidth))
			Expect(processed.Height).To(Equal(2400))
		})

		It("should encode as JPEG", func() {
			Expect(processed.ContentType).To(Equal("image/jpeg"))
			cfg, decodeErr := jpeg.DecodeConfig(bytes.NewReader(processed.Data))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(DefaultTargetWidth))
		})
	})

	When("a custom target width is configured", func() {
		BeforeEach(func() {
			transformer = NewTransformer(600, 70)
		})

		It("should use it", func() {
			Expect(transformer.TargetWidth()).To(Equal(600))
			Expect(processed.Width).To(Equal(600))
			Expect(processed.Height).To(Equal(1200))
		})
	})

	When("the frame is unknown", func() {
		BeforeEach(func() {
			frame = nil
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrGeometryUnavailable))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			photo.Data = []byte("not an image")
			photo.ContentType = "image/jpeg"
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
			Expect(processed).To(BeNil())
		})
	})

	When("the photo is empty", func() {
		BeforeEach(func() {
			photo.Data = nil
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("empty photo")))
		})
	})

	When("the guide maps outside the photo", func() {
		BeforeEach(func() {
			frame = &CaptureFrame{X: 10, Y: 900, Width: 50, Height: 50}
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("outside the photo bounds")))
		})
	})
})

var _ = Describe("format detection", func() {
	It("should detect HEIC brands", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("should not detect short data as HEIC", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})

	It("should detect HEIC mime types", func() {
		Expect(isHEICMimeType("image/heif")).To(BeTrue())
		Expect(isHEICMimeType("image/jpeg")).To(BeFalse())
	})

	It("should detect PDF magic", func() {
		Expect(isPDFFormat([]byte("%PDF-1.4"))).To(BeTrue())
		Expect(isPDFFormat([]byte("\x89PNG"))).To(BeFalse())
	})
})
