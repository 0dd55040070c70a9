package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/beacon/protocol"
)

var _ = Describe("Sign()", func() {
	It("is deterministic", func() {
		first, err := protocol.Sign("secret-key", "PING")
		Expect(err).To(Succeed())

		second, err := protocol.Sign("secret-key", "PING")
		Expect(err).To(Succeed())

		Expect(first).To(Equal(second))
	})

	It("produces a hex SHA-256 sized digest", func() {
		sig, err := protocol.Sign("secret-key", "PING")
		Expect(err).To(Succeed())
		Expect(sig).To(HaveLen(64))
		Expect(sig).To(MatchRegexp(`^[0-9a-f]+$`))
	})

	It("changes when the message changes", func() {
		first, err := protocol.Sign("secret-key", "PING")
		Expect(err).To(Succeed())

		second, err := protocol.Sign("secret-key", "PONG")
		Expect(err).To(Succeed())

		Expect(first).NotTo(Equal(second))
	})

	It("changes when the secret changes", func() {
		first, err := protocol.Sign("secret-key", "PING")
		Expect(err).To(Succeed())

		second, err := protocol.Sign("other-key", "PING")
		Expect(err).To(Succeed())

		Expect(first).NotTo(Equal(second))
	})

	It("trims the message before signing", func() {
		trimmed, err := protocol.Sign("secret-key", "PING")
		Expect(err).To(Succeed())

		padded, err := protocol.Sign("secret-key", "  PING \n")
		Expect(err).To(Succeed())

		Expect(padded).To(Equal(trimmed))
	})

	It("fails without a secret", func() {
		_, err := protocol.Sign("", "PING")
		Expect(errors.Is(err, protocol.ErrCredentialsMissing)).To(BeTrue())
	})
})
