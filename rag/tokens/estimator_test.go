package tokens_test

import (
	. "github.com/contextforge/contextforge/rag/tokens"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Estimator", func() {
	It("should count empty text as zero tokens", func() {
		var e *Estimator
		Expect(e.Count("")).To(Equal(0))
	})

	It("should fall back to a character estimate without an encoder", func() {
		e := &Estimator{}
		Expect(e.Count("12345678")).To(Equal(2))
		Expect(e.Count("abc")).To(Equal(0))
	})

	It("should never return a negative count", func() {
		e := NewEstimator()
		for _, text := range []string{"", "hello world", "  ", "ünïcödé — ♥"} {
			Expect(e.Count(text)).To(BeNumerically(">=", 0))
		}
	})

	It("should count more tokens for longer text", func() {
		e := NewEstimator()
		short := "hello"
		long := "hello world this is a considerably longer sentence with many more words"
		Expect(e.Count(long)).To(BeNumerically(">", e.Count(short)))
	})
})
