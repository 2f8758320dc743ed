package receipt

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestReceipt() *Receipt {
	name := "TRADER JOES"
	return &Receipt{
		Merchant:    Merchant{Name: &name},
		Transaction: Transaction{Date: "2024-01-15"},
		Items: []Item{
			{Name: "MILK 2%", Quantity: 1, PricePerUnit: 3.49, TotalPrice: 3.49},
			{Name: "BANANAS", Quantity: 6, PricePerUnit: 0.25, TotalPrice: 1.5},
		},
		Totals: Totals{Subtotal: 4.99, Tax: 0.41, Total: 5.40, Currency: "USD"},
	}
}

var _ = Describe("Model", func() {
	var (
		extracted *Receipt
		model     *Model
	)

	BeforeEach(func() {
		extracted = newTestReceipt()
		model = NewModel(extracted)
	})

	It("should copy the extracted receipt", func() {
		extracted.Items[0].Name = "changed"
		Expect(model.Snapshot().Items[0].Name).To(Equal("MILK 2%"))
	})

	It("should start with no corrections", func() {
		Expect(model.Corrections()).To(BeEmpty())
	})

	Describe("RenameItem", func() {
		When("an item is renamed twice", func() {
			BeforeEach(func() {
				Expect(model.RenameItem(0, "Milk")).To(Succeed())
				Expect(model.RenameItem(0, "2% Milk")).To(Succeed())
			})

			It("should map from the true original", func() {
				Expect(model.Corrections()).To(Equal(map[string]string{"MILK 2%": "2% Milk"}))
			})

			It("should set the latest name", func() {
				Expect(model.Snapshot().Items[0].Name).To(Equal("2% Milk"))
			})
		})

		When("an item is renamed back to its original", func() {
			BeforeEach(func() {
				Expect(model.RenameItem(1, "Bananas")).To(Succeed())
				Expect(model.RenameItem(1, "BANANAS")).To(Succeed())
			})

			It("should drop the correction", func() {
				Expect(model.Corrections()).NotTo(HaveKey("BANANAS"))
			})
		})

		When("the new name equals the original on first edit", func() {
			BeforeEach(func() {
				Expect(model.RenameItem(1, "BANANAS")).To(Succeed())
			})

			It("should not record a correction", func() {
				Expect(model.Corrections()).To(BeEmpty())
			})
		})

		When("two items are renamed", func() {
			BeforeEach(func() {
				Expect(model.RenameItem(0, "Milk")).To(Succeed())
				Expect(model.RenameItem(1, "Bananas")).To(Succeed())
			})

			It("should record one entry per item", func() {
				Expect(model.Corrections()).To(HaveLen(2))
			})
		})

		When("the index is out of range", func() {
			It("returns the error", func() {
				Expect(model.RenameItem(5, "x")).To(MatchError(ErrItemIndex))
				Expect(model.RenameItem(-1, "x")).To(MatchError(ErrItemIndex))
			})
		})

		It("should not modify a snapshot taken before the edit", func() {
			before := model.Snapshot()
			Expect(model.RenameItem(0, "Milk")).To(Succeed())
			Expect(before.Items[0].Name).To(Equal("MILK 2%"))
		})
	})

	Describe("SetItemTotal", func() {
		DescribeTable("parsing",
			func(text string, expected float64) {
				Expect(model.SetItemTotal(0, text)).To(Succeed())
				Expect(model.Snapshot().Items[0].TotalPrice).To(Equal(expected))
			},
			Entry("decimal", "4.25", 4.25),
			Entry("dollar prefix", "$4.25", 4.25),
			Entry("padded", " 2 ", 2.0),
			Entry("not a number clamps to zero", "abc", 0.0),
			Entry("empty clamps to zero", "", 0.0),
			Entry("negative clamps to zero", "-3", 0.0),
			Entry("NaN clamps to zero", "NaN", 0.0),
		)

		It("should not recompute the receipt total", func() {
			Expect(model.SetItemTotal(0, "100")).To(Succeed())
			Expect(model.Snapshot().Totals.Total).To(Equal(5.40))
			Expect(model.DisplayTotal()).To(Equal("$5.40"))
		})

		It("returns the error for a missing item", func() {
			Expect(model.SetItemTotal(2, "1")).To(MatchError(ErrItemIndex))
		})
	})

	Describe("SetMerchantName", func() {
		It("should replace the name", func() {
			model.SetMerchantName("Trader Joe's")
			Expect(model.Snapshot().MerchantName()).To(Equal("Trader Joe's"))
		})
	})

	Describe("SetTransactionDate", func() {
		It("should normalize the date", func() {
			Expect(model.SetTransactionDate("01/20/2024")).To(Succeed())
			Expect(model.Snapshot().Transaction.Date).To(Equal("2024-01-20"))
		})

		It("returns the error for a malformed date", func() {
			Expect(model.SetTransactionDate("soon")).To(MatchError(ErrInvalidDate))
			Expect(model.Snapshot().Transaction.Date).To(Equal("2024-01-15"))
		})
	})

	When("no items were detected", func() {
		BeforeEach(func() {
			model = NewModel(&Receipt{Items: []Item{}})
		})

		It("should report the empty state", func() {
			Expect(model.HasItems()).To(BeFalse())
			Expect(model.DisplayTotal()).To(Equal("$0.00"))
		})
	})

	It("should never expose a half-written item to concurrent readers", func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; i < 200; i++ {
				Expect(model.SetItemTotal(1, "1.5")).To(Succeed())
				Expect(model.RenameItem(1, "Bananas")).To(Succeed())
			}
		}()
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := model.Snapshot()
				Expect(snap.Items).To(HaveLen(2))
				Expect(snap.Items[1].Quantity).To(Equal(6.0))
			}
		}()
		wg.Wait()
	})
})
