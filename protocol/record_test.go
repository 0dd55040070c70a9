package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/beacon/protocol"
)

var _ = Describe("Record", func() {
	It("keeps keys in insertion order", func() {
		record := protocol.NewRecord()
		record.Set("position", 1)
		record.Set("event", "created")
		record.Set("stream", "orders")

		Expect(record.Keys()).To(Equal([]string{"position", "event", "stream"}))
		Expect(record.Len()).To(Equal(3))
	})

	It("overwrites a key without moving it", func() {
		record := protocol.NewRecord()
		record.Set("a", 1)
		record.Set("b", 2)
		record.Set("a", 3)

		Expect(record.Keys()).To(Equal([]string{"a", "b"}))

		value, ok := record.Get("a")
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal(3))
	})

	It("renders JSON with fields in key order", func() {
		record := protocol.NewRecord()
		record.Set("b", 2)
		record.Set("a", 1)

		Expect(record.JSON()).To(Equal(`{"b":2,"a":1}`))
	})

	It("renders a dotted key as a literal key, not a nested object", func() {
		record := protocol.NewRecord()
		record.Set("order.id", 7)

		Expect(record.JSON()).To(Equal(`{"order.id":7}`))
	})

	It("renders keys with wildcard characters literally", func() {
		record := protocol.NewRecord()
		record.Set("a*b", "x")
		record.Set("c?d", "y")

		Expect(record.JSON()).To(Equal(`{"a*b":"x","c?d":"y"}`))
	})
})
