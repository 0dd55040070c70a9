package protocol_test

import (
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/beacon/protocol"
)

var _ = Describe("AuthState", func() {
	Describe("Mode()", func() {
		It("starts unauthenticated without credentials", func() {
			auth := protocol.NewAuthState("", "")
			Expect(auth.Mode()).To(Equal(protocol.ModeUnauthenticated))
		})

		It("is inline-capable with credentials", func() {
			auth := protocol.NewAuthState("user", "secret-key")
			Expect(auth.Mode()).To(Equal(protocol.ModeInline))
		})

		It("prefers connection-scoped over inline", func() {
			auth := protocol.NewAuthState("user", "secret-key")
			auth.SetConnectionScoped()
			Expect(auth.Mode()).To(Equal(protocol.ModeConnectionScoped))
		})

		It("prefers a cached token over everything", func() {
			auth := protocol.NewAuthState("user", "secret-key")
			auth.SetConnectionScoped()
			auth.SetSessionToken("abcd", "user")
			Expect(auth.Mode()).To(Equal(protocol.ModeToken))
		})

		It("falls back to inline after Reset", func() {
			auth := protocol.NewAuthState("user", "secret-key")
			auth.SetSessionToken("abcd", "user")

			auth.Reset()

			Expect(auth.Mode()).To(Equal(protocol.ModeInline))
			Expect(auth.AuthenticatedUser()).To(BeEmpty())
		})
	})

	Describe("FormatCommand()", func() {
		It("sends the trimmed command unmodified when unauthenticated", func() {
			auth := protocol.NewAuthState("", "")

			formatted, err := auth.FormatCommand("PING\n")
			Expect(err).To(Succeed())
			Expect(formatted).To(Equal("PING"))
		})

		It("prepends user and signature in inline mode", func() {
			auth := protocol.NewAuthState("user", "secret-key")

			sig, err := protocol.Sign("secret-key", "PING")
			Expect(err).To(Succeed())

			formatted, err := auth.FormatCommand("PING")
			Expect(err).To(Succeed())
			Expect(formatted).To(Equal(fmt.Sprintf("user:%s:PING", sig)))
		})

		It("prepends only the signature in connection-scoped mode", func() {
			auth := protocol.NewAuthState("user", "secret-key")
			auth.SetConnectionScoped()

			sig, err := protocol.Sign("secret-key", "PING")
			Expect(err).To(Succeed())

			formatted, err := auth.FormatCommand("PING")
			Expect(err).To(Succeed())
			Expect(formatted).To(Equal(fmt.Sprintf("%s:PING", sig)))
		})

		It("appends the token suffix in token mode", func() {
			auth := protocol.NewAuthState("user", "secret-key")
			auth.SetSessionToken("abcd", "user")

			formatted, err := auth.FormatCommand("PING")
			Expect(err).To(Succeed())
			Expect(formatted).To(Equal("PING TOKEN abcd"))
		})
	})

	Describe("Headers()", func() {
		It("signs every command independently", func() {
			auth := protocol.NewAuthState("user", "secret-key")

			sig, err := protocol.Sign("secret-key", "PING")
			Expect(err).To(Succeed())

			headers, err := auth.Headers("PING")
			Expect(err).To(Succeed())
			Expect(headers).To(Equal(map[string]string{
				"X-Auth-User":      "user",
				"X-Auth-Signature": sig,
			}))
		})

		It("signs with headers even when a token is cached", func() {
			auth := protocol.NewAuthState("user", "secret-key")
			auth.SetSessionToken("abcd", "user")

			headers, err := auth.Headers("PING")
			Expect(err).To(Succeed())
			Expect(headers).To(HaveKey("X-Auth-Signature"))
			Expect(headers).NotTo(HaveKey("TOKEN"))
		})

		It("is empty without credentials", func() {
			auth := protocol.NewAuthState("", "")

			headers, err := auth.Headers("PING")
			Expect(err).To(Succeed())
			Expect(headers).To(BeEmpty())
		})
	})

	Describe("AuthCommand()", func() {
		It("signs the user ID", func() {
			auth := protocol.NewAuthState("user", "secret-key")

			sig, err := protocol.Sign("secret-key", "user")
			Expect(err).To(Succeed())

			command, err := auth.AuthCommand()
			Expect(err).To(Succeed())
			Expect(command).To(Equal(fmt.Sprintf("AUTH user:%s", sig)))
		})

		It("fails without credentials", func() {
			auth := protocol.NewAuthState("", "")

			_, err := auth.AuthCommand()
			Expect(err).To(MatchError(protocol.ErrCredentialsMissing))
		})
	})
})
