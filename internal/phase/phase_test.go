package phase

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPhase(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Phase Suite")
}

var allEvents = []EventKind{
	ScanRequested, ShutterCompleted, Refocused, Back,
	AnalysisSucceeded, PipelineFailed, Cancelled, Retake, Confirm,
}

var allPhases = []Phase{Hello, Scanning, Processing, Result}

// everyEvent expands each kind with every combination of guard facts
func everyEvent() []Event {
	events := make([]Event, 0, len(allEvents)*4)
	for _, kind := range allEvents {
		for _, granted := range []bool{true, false} {
			for _, measured := range []bool{true, false} {
				events = append(events, Event{Kind: kind, PermissionGranted: granted, FrameMeasured: measured})
			}
		}
	}
	return events
}

var _ = Describe("Transition", func() {
	DescribeTable("legal transitions",
		func(from Phase, event Event, next Phase, effects []Effect) {
			outcome, err := Transition(from, event)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Next).To(Equal(next))
			Expect(outcome.Effects).To(Equal(effects))
		},
		Entry("scan with permission", Hello, Event{Kind: ScanRequested, PermissionGranted: true}, Scanning, []Effect{ResetCapture}),
		Entry("scan without permission", Hello, Event{Kind: ScanRequested}, Hello, []Effect{RequestPermission, NotifyPermissionDenied}),
		Entry("shutter with frame", Scanning, Event{Kind: ShutterCompleted, FrameMeasured: true}, Processing, []Effect{StartPipeline}),
		Entry("shutter without frame", Scanning, Event{Kind: ShutterCompleted}, Scanning, []Effect{NotifyGeometryUnavailable}),
		Entry("refocus", Scanning, Event{Kind: Refocused}, Scanning, []Effect{ResetCapture}),
		Entry("back", Scanning, Event{Kind: Back}, Hello, []Effect{ResetSession}),
		Entry("analysis succeeded", Processing, Event{Kind: AnalysisSucceeded}, Result, []Effect{PopulateResult}),
		Entry("pipeline failed", Processing, Event{Kind: PipelineFailed}, Scanning, []Effect{NotifyFailure, ResetCapture}),
		Entry("cancelled", Processing, Event{Kind: Cancelled}, Hello, []Effect{CancelPipeline, ResetSession}),
		Entry("retake", Result, Event{Kind: Retake}, Scanning, []Effect{DiscardReceipt, ResetCapture}),
		Entry("confirm", Result, Event{Kind: Confirm}, Hello, []Effect{PersistReceipt, ResetSession}),
	)

	DescribeTable("illegal transitions",
		func(from Phase, kind EventKind) {
			outcome, err := Transition(from, Event{Kind: kind, PermissionGranted: true, FrameMeasured: true})
			Expect(err).To(MatchError(ErrInvalidTransition))
			Expect(outcome.Next).To(Equal(from))
			Expect(outcome.Effects).To(BeEmpty())
		},
		Entry("shutter while idle", Hello, ShutterCompleted),
		Entry("confirm while idle", Hello, Confirm),
		Entry("second run while processing", Processing, ShutterCompleted),
		Entry("scan while processing", Processing, ScanRequested),
		Entry("analysis result while scanning", Scanning, AnalysisSucceeded),
		Entry("shutter on the result screen", Result, ShutterCompleted),
		Entry("cancel on the result screen", Result, Cancelled),
	)

	DescribeTable("reachability in one transition",
		func(from Phase) {
			for _, event := range everyEvent() {
				outcome, err := Transition(from, event)
				if err != nil {
					continue
				}
				Expect(outcome.Next).To(BeElementOf(Scanning, Hello), "event %s", event.Kind)
			}
		},
		Entry("from Hello", Hello),
		Entry("from Result", Result),
	)

	It("should reset the capture on every entry into Scanning", func() {
		for _, from := range allPhases {
			for _, event := range everyEvent() {
				outcome, err := Transition(from, event)
				if err != nil || outcome.Next != Scanning {
					continue
				}
				if from == Scanning && event.Kind == ShutterCompleted {
					// a refused shutter never left Scanning
					continue
				}
				Expect(outcome.Effects).To(ContainElement(ResetCapture), "%s via %s", from, event.Kind)
			}
		}
	})

	It("should reset the session whenever a later phase returns to Hello", func() {
		for _, from := range []Phase{Scanning, Processing, Result} {
			for _, event := range everyEvent() {
				outcome, err := Transition(from, event)
				if err == nil && outcome.Next == Hello {
					Expect(outcome.Effects).To(ContainElement(ResetSession), "%s via %s", from, event.Kind)
				}
			}
		}
	})

	It("should only start a pipeline from Scanning", func() {
		for _, from := range allPhases {
			for _, event := range everyEvent() {
				outcome, _ := Transition(from, event)
				if from != Scanning {
					Expect(outcome.Effects).NotTo(ContainElement(StartPipeline))
				}
			}
		}
	})
})

var _ = Describe("Phase", func() {
	It("should encode by name", func() {
		text, err := Processing.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(text)).To(Equal("PROCESSING"))
	})

	It("should describe unknown values", func() {
		Expect(Phase(42).String()).To(Equal("Phase(42)"))
	})
})
