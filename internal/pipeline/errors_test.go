package pipeline

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Error", func() {
	It("should include the kind and cause in the message", func() {
		err := NewError(KindUpload, errors.New("connection reset"))
		Expect(err.Error()).To(Equal("upload: connection reset"))
	})

	It("should unwrap to the cause", func() {
		cause := errors.New("connection reset")
		Expect(NewError(KindUpload, cause)).To(MatchError(cause))
	})

	It("should be found through wrapping", func() {
		err := fmt.Errorf("running pipeline: %w", NewError(KindAnalysis, errors.New("boom")))
		kind, ok := KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(KindAnalysis))
	})

	It("should report plain errors as unclassified", func() {
		_, ok := KindOf(errors.New("boom"))
		Expect(ok).To(BeFalse())
	})

	It("should share one notice between analysis and parse failures", func() {
		Expect(NewError(KindParse, nil).Notice()).To(Equal(NewError(KindAnalysis, nil).Notice()))
	})

	DescribeTable("persistence",
		func(kind Kind, persistent bool) {
			Expect(NewError(kind, nil).Persistent()).To(Equal(persistent))
		},
		Entry("permission denied", KindPermissionDenied, true),
		Entry("geometry unavailable", KindGeometryUnavailable, false),
		Entry("transform", KindTransform, false),
		Entry("upload", KindUpload, false),
		Entry("analysis", KindAnalysis, false),
		Entry("parse", KindParse, false),
	)
})
