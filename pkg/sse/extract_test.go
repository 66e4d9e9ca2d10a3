package sse_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomworksco/loom/pkg/sse"
)

var _ = Describe("ExtractData", func() {
	It("extracts the payload from a data line", func() {
		payload, ok := sse.ExtractData(`data: {"msgType":"flow"}`)
		Expect(ok).To(BeTrue())
		Expect(payload).To(Equal(` {"msgType":"flow"}`))
	})

	It("strips exactly the five-byte prefix, leaving any space intact", func() {
		payload, ok := sse.ExtractData("data:no-space")
		Expect(ok).To(BeTrue())
		Expect(payload).To(Equal("no-space"))

		payload, ok = sse.ExtractData("data:  doubly spaced")
		Expect(ok).To(BeTrue())
		Expect(payload).To(Equal("  doubly spaced"))
	})

	It("yields an empty payload for a bare data line", func() {
		payload, ok := sse.ExtractData("data:")
		Expect(ok).To(BeTrue())
		Expect(payload).To(BeEmpty())
	})

	It("ignores blank lines", func() {
		_, ok := sse.ExtractData("")
		Expect(ok).To(BeFalse())
	})

	It("ignores comment and heartbeat lines", func() {
		_, ok := sse.ExtractData(": keep-alive")
		Expect(ok).To(BeFalse())

		_, ok = sse.ExtractData(":heartbeat")
		Expect(ok).To(BeFalse())
	})

	It("ignores other field lines without error", func() {
		for _, line := range []string{
			"event: progress",
			"id: 42",
			"retry: 3000",
			"unknown-field: value",
			"data", // no colon: a field name with an empty value
		} {
			_, ok := sse.ExtractData(line)
			Expect(ok).To(BeFalse(), "line %q", line)
		}
	})
})
