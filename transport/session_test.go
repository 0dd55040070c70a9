package transport_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/beacon/protocol"
	"github.com/luma/beacon/transport"
)

type executeResult struct {
	resp *transport.Response
	err  error
}

func executeAsync(s *transport.Session, command string) <-chan executeResult {
	ch := make(chan executeResult, 1)

	go func() {
		resp, err := s.Execute(context.Background(), command, nil)
		ch <- executeResult{resp, err}
	}()

	return ch
}

var _ = Describe("Session", func() {
	var (
		socket  *fakeSocket
		session *transport.Session
	)

	BeforeEach(func() {
		socket = newFakeSocket()
		session = transport.NewSession(socket, transport.Options{})
	})

	AfterEach(func() {
		session.Close()
	})

	It("reports the session kind", func() {
		Expect(session.Kind()).To(Equal(transport.KindSession))
	})

	It("connects lazily on the first execute", func() {
		Expect(socket.Connects()).To(Equal(0))

		done := executeAsync(session, "PING")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("PONG")

		result := <-done
		Expect(result.err).To(Succeed())
		Expect(socket.Connects()).To(Equal(1))
	})

	It("terminates commands with a line break", func() {
		done := executeAsync(session, "PING")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("PONG")
		<-done

		Expect(socket.Sent()[0]).To(Equal("PING\n"))
	})

	It("classifies a plain body as a 200", func() {
		done := executeAsync(session, "PING")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("PONG")

		result := <-done
		Expect(result.err).To(Succeed())
		Expect(result.resp.Status).To(Equal(200))
		Expect(result.resp.Body).To(Equal("PONG"))
		Expect(result.resp.Headers).To(BeEmpty())
	})

	It("classifies an ERROR: body as a 400", func() {
		done := executeAsync(session, "NOPE")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("ERROR: unknown command")

		result := <-done
		Expect(result.err).To(Succeed())
		Expect(result.resp.Status).To(Equal(400))
	})

	It("classifies a leading three-digit code", func() {
		done := executeAsync(session, "SCAN missing")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("404 no such stream")

		result := <-done
		Expect(result.err).To(Succeed())
		Expect(result.resp.Status).To(Equal(404))
	})

	It("sends one command at a time in FIFO order", func() {
		first := executeAsync(session, "FIRST")
		Eventually(socket.SentCount).Should(Equal(1))

		second := executeAsync(session, "SECOND")

		// The second command must wait for the first response.
		Consistently(socket.SentCount, "100ms").Should(Equal(1))

		socket.Respond("OK first")
		Eventually(socket.SentCount).Should(Equal(2))
		Expect(socket.Sent()).To(Equal([]string{"FIRST\n", "SECOND\n"}))

		socket.Respond("OK second")

		Expect((<-first).resp.Body).To(Equal("OK first"))
		Expect((<-second).resp.Body).To(Equal("OK second"))
	})

	It("coalesces concurrent connects into a single attempt", func() {
		socket.GateConnect()

		first := executeAsync(session, "FIRST")
		second := executeAsync(session, "SECOND")
		third := executeAsync(session, "THIRD")

		// Everyone parks behind the one in-flight dial.
		Eventually(socket.Connects).Should(Equal(1))
		Consistently(socket.Connects, "100ms").Should(Equal(1))
		Expect(socket.SentCount()).To(Equal(0))

		socket.ReleaseConnect()

		// Commands still go out one at a time, answered in order.
		for i := 0; i < 3; i++ {
			Eventually(socket.SentCount).Should(Equal(i + 1))
			socket.Respond("OK " + strings.TrimSpace(socket.Sent()[i]))
		}

		for _, done := range []<-chan executeResult{first, second, third} {
			Expect((<-done).err).To(Succeed())
		}
		Expect(socket.Connects()).To(Equal(1))
	})

	It("closes the socket when a write fails and reconnects afterwards", func() {
		socket.SetSendErr(errors.New("broken pipe"))

		_, err := session.Execute(context.Background(), "PING", nil)
		Expect(errors.Is(err, protocol.ErrConnection)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("writing command"))
		Expect(socket.Closes()).To(Equal(1))

		socket.SetSendErr(nil)
		done := executeAsync(session, "PING")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("PONG")

		Expect((<-done).err).To(Succeed())
		Expect(socket.Connects()).To(Equal(2))
	})

	It("fails the connect attempt with a connection error", func() {
		socket.SetConnectErr(errors.New("refused"))

		_, err := session.Execute(context.Background(), "PING", nil)
		Expect(errors.Is(err, protocol.ErrConnection)).To(BeTrue())
	})

	It("recovers after a failed connect attempt", func() {
		socket.SetConnectErr(errors.New("refused"))
		_, err := session.Execute(context.Background(), "PING", nil)
		Expect(err).To(HaveOccurred())

		socket.SetConnectErr(nil)
		done := executeAsync(session, "PING")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("PONG")

		Expect((<-done).err).To(Succeed())
		Expect(socket.Connects()).To(Equal(2))
	})

	It("fails the active and queued requests when the socket dies", func() {
		first := executeAsync(session, "FIRST")
		Eventually(socket.SentCount).Should(Equal(1))
		second := executeAsync(session, "SECOND")
		Consistently(socket.SentCount, "100ms").Should(Equal(1))

		socket.Close()

		firstResult := <-first
		secondResult := <-second
		Expect(errors.Is(firstResult.err, protocol.ErrConnection)).To(BeTrue())
		Expect(firstResult.err.Error()).To(ContainSubstring("connection closed"))
		Expect(errors.Is(secondResult.err, protocol.ErrConnection)).To(BeTrue())
	})

	It("times out a request and advances the queue", func() {
		session = transport.NewSession(socket, transport.Options{
			RequestTimeout: 50 * time.Millisecond,
		})

		first := executeAsync(session, "SLOW")
		Eventually(socket.SentCount).Should(Equal(1))
		second := executeAsync(session, "NEXT")

		result := <-first
		Expect(errors.Is(result.err, protocol.ErrConnection)).To(BeTrue())
		Expect(result.err.Error()).To(ContainSubstring("timed out after 50ms"))

		// The queue moves on to the next command.
		Eventually(socket.SentCount).Should(Equal(2))
		socket.Respond("OK next")
		Expect((<-second).err).To(Succeed())
	})

	It("drops a response that arrives with nothing in flight", func() {
		done := executeAsync(session, "PING")
		Eventually(socket.SentCount).Should(Equal(1))
		socket.Respond("PONG")
		<-done

		Expect(func() { socket.Respond("stray") }).NotTo(Panic())
		Consistently(socket.SentCount, "50ms").Should(Equal(1))
	})

	It("rejects everything and reconnects after Close", func() {
		first := executeAsync(session, "FIRST")
		Eventually(socket.SentCount).Should(Equal(1))

		Expect(session.Close()).To(Succeed())
		result := <-first
		Expect(errors.Is(result.err, protocol.ErrConnection)).To(BeTrue())

		done := executeAsync(session, "AGAIN")
		Eventually(socket.SentCount).Should(Equal(2))
		socket.Respond("PONG")

		Expect((<-done).err).To(Succeed())
		Expect(socket.Connects()).To(Equal(2))
	})

	It("fails the local waiter on context cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())

		ch := make(chan executeResult, 1)
		go func() {
			resp, err := session.Execute(ctx, "SLOW", nil)
			ch <- executeResult{resp, err}
		}()

		Eventually(socket.SentCount).Should(Equal(1))
		cancel()

		result := <-ch
		Expect(errors.Is(result.err, protocol.ErrConnection)).To(BeTrue())
	})
})
