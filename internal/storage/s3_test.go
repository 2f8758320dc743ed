package storage

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("S3Storage", func() {
	var (
		server  *ghttp.Server
		storage *S3Storage
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		client := s3.New(s3.Options{
			Region:           "auto",
			BaseEndpoint:     aws.String(server.URL()),
			UsePathStyle:     true,
			Credentials:      credentials.NewStaticCredentialsProvider("access", "secret", ""),
			RetryMaxAttempts: 1,
		})
		storage = NewS3StorageWithClient(client, "https://project.supabase.co/storage/v1/object/public")
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Upload", func() {
		When("the store accepts the object", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPut, "/receipt_images/receipt_1_0.jpg"),
					ghttp.VerifyHeaderKV("Content-Type", "image/jpeg"),
					ghttp.RespondWith(http.StatusOK, nil),
				))
			})

			It("should return the bucket/key location", func() {
				location, err := storage.Upload(ctx, "receipt_images", "receipt_1_0.jpg", []byte("jpeg"), "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
				Expect(location).To(Equal("receipt_images/receipt_1_0.jpg"))
				Expect(server.ReceivedRequests()).To(HaveLen(1))
			})
		})

		When("the store rejects the object", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusForbidden, nil))
			})

			It("returns the error", func() {
				_, err := storage.Upload(ctx, "receipt_images", "receipt_1_0.jpg", []byte("jpeg"), "image/jpeg")
				Expect(err).To(MatchError(ContainSubstring("putting object receipt_images/receipt_1_0.jpg")))
			})
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodDelete, "/receipt_images/receipt_1_0.jpg"),
				ghttp.RespondWith(http.StatusNoContent, nil),
			))
		})

		It("should delete the object", func() {
			Expect(storage.Delete(ctx, "receipt_images", "receipt_1_0.jpg")).To(Succeed())
		})
	})

	Describe("PublicURL", func() {
		It("should address the object under the public base", func() {
			Expect(storage.PublicURL("receipt_images", "receipt_1_0.jpg")).
				To(Equal("https://project.supabase.co/storage/v1/object/public/receipt_images/receipt_1_0.jpg"))
		})
	})
})
