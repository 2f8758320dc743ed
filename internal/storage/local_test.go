package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestStorage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Storage Suite")
}

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time {
	return f.now
}

var _ = Describe("KeyGenerator", func() {
	var gen *KeyGenerator

	BeforeEach(func() {
		gen = NewKeyGeneratorWithClock(fixedClock{now: time.UnixMilli(1705312800123)})
	})

	It("should name keys with epoch milliseconds and index", func() {
		Expect(gen.Keys(2)).To(Equal([]string{
			"receipt_1705312800123_0.jpg",
			"receipt_1705312800123_1.jpg",
		}))
	})

	It("should return no keys for no images", func() {
		Expect(gen.Keys(0)).To(BeEmpty())
	})
})

var _ = Describe("LocalStorage", func() {
	var (
		ctx     context.Context
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir, "http://localhost:8080/public/")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Upload", func() {
		var (
			bucket   string
			key      string
			data     []byte
			location string
			err      error
		)

		BeforeEach(func() {
			bucket = "receipt_images"
			key = "receipt_1_0.jpg"
			data = []byte("jpeg bytes")
		})

		JustBeforeEach(func() {
			location, err = storage.Upload(ctx, bucket, key, data, "image/jpeg")
		})

		When("uploading succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the bucket/key location", func() {
				Expect(location).To(Equal("receipt_images/receipt_1_0.jpg"))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, bucket, key)).To(BeAnExistingFile())
			})
		})

		When("the key escapes the bucket", func() {
			BeforeEach(func() {
				key = "../../etc/passwd"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(errInvalidName))
			})
		})

		When("the context is cancelled", func() {
			BeforeEach(func() {
				cancelled, cancel := context.WithCancel(context.Background())
				cancel()
				ctx = cancelled
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(context.Canceled))
			})
		})
	})

	Describe("PublicURL", func() {
		It("should join the base URL, bucket and key", func() {
			Expect(storage.PublicURL("receipt_images", "receipt_1_0.jpg")).
				To(Equal("http://localhost:8080/public/receipt_images/receipt_1_0.jpg"))
		})
	})

	Describe("Get", func() {
		var (
			key  string
			data []byte
			err  error
		)

		JustBeforeEach(func() {
			data, err = storage.Get("receipt_images", key)
		})

		When("file exists", func() {
			BeforeEach(func() {
				key = "test.jpg"
				_, uploadErr := storage.Upload(ctx, "receipt_images", key, []byte("test file content"), "image/jpeg")
				Expect(uploadErr).NotTo(HaveOccurred())
			})

			It("should return the correct file data", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("test file content"))
			})
		})

		When("file does not exist", func() {
			BeforeEach(func() {
				key = "nonexistent.jpg"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("reading file")))
			})
		})
	})

	Describe("Delete", func() {
		var (
			key string
			err error
		)

		JustBeforeEach(func() {
			err = storage.Delete(ctx, "receipt_images", key)
		})

		When("file exists", func() {
			BeforeEach(func() {
				key = "test.jpg"
				_, uploadErr := storage.Upload(ctx, "receipt_images", key, []byte("test content"), "image/jpeg")
				Expect(uploadErr).NotTo(HaveOccurred())
			})

			It("should remove the file from disk", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(filepath.Join(tmpDir, "receipt_images", key)).NotTo(BeAnExistingFile())
			})
		})

		When("file does not exist", func() {
			BeforeEach(func() {
				key = "nonexistent.jpg"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("deleting file")))
			})
		})
	})

	Describe("NewLocalStorage", func() {
		It("should create a missing directory", func() {
			storagePath := filepath.Join(GinkgoT().TempDir(), "receipts")
			_, err := NewLocalStorage(storagePath, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(storagePath).To(BeADirectory())
		})
	})
})
