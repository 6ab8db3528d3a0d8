package topsen_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hmmsearch/internal/topsen"
)

var noFillers = func(int32) bool { return false }

var _ = Describe("Predictor", func() {
	Context("window <= 1", func() {
		It("allows every non-filler phone unconditionally", func() {
			p := topsen.New(4, 1, 0, noFillers)
			for ph := int32(0); ph < 4; ph++ {
				Expect(p.Allowed(ph)).To(BeTrue())
			}
			p.Update([]int32{-1, -1, -1, -1}, 0)
			for ph := int32(0); ph < 4; ph++ {
				Expect(p.Allowed(ph)).To(BeTrue())
			}
		})
	})

	Context("window > 1", func() {
		It("allows a phone once it has scored within thresh of the top senone", func() {
			p := topsen.New(3, 4, -100, noFillers)
			// Phone 0 never close to the top; phone 1 within thresh.
			Expect(p.Allowed(0)).To(BeFalse())
			Expect(p.Allowed(1)).To(BeFalse())

			p.Update([]int32{-5000, -20, -5000}, 0)
			Expect(p.Allowed(0)).To(BeFalse())
			Expect(p.Allowed(1)).To(BeTrue())
			Expect(p.Allowed(2)).To(BeFalse())
		})

		It("retires a phone's evidence once it falls out of the window", func() {
			p := topsen.New(2, 2, -100, noFillers)
			p.Update([]int32{-10, -5000}, 0)
			Expect(p.Allowed(0)).To(BeTrue())

			// Two more frames with phone 0 scoring poorly should push its
			// lone good frame out of the window.
			p.Update([]int32{-5000, -5000}, 0)
			p.Update([]int32{-5000, -5000}, 0)
			Expect(p.Allowed(0)).To(BeFalse())
		})

		It("always allows filler phones regardless of recent evidence", func() {
			isFiller := func(ph int32) bool { return ph == 1 }
			p := topsen.New(2, 4, -100, isFiller)
			Expect(p.Allowed(1)).To(BeTrue())
			p.Update([]int32{-5000, -5000}, 0)
			Expect(p.Allowed(1)).To(BeTrue())
		})

		It("tracks frame count and non-filler phones-in-window in Stats", func() {
			isFiller := func(ph int32) bool { return ph == 1 }
			p := topsen.New(2, 3, -100, isFiller)
			p.Update([]int32{-10, -10}, 0)
			p.Update([]int32{-10, -10}, 0)
			stats := p.Stats()
			Expect(stats.Frame).To(Equal(int32(2)))
			Expect(stats.Window).To(Equal(int32(3)))
			// Only phone 0 counts; phone 1 is a filler and is excluded.
			Expect(stats.PhonesInTopsenWindow).To(Equal(int64(2)))
		})
	})
})
