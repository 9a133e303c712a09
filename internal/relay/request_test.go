package relay_test

import (
	"net"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/relay-balancer/internal/relay"
)

// frame feeds payload to ReadRequest over an in-memory connection.
func frame(payload string, closeAfter bool, opts relay.Options) ([]byte, error) {
	server, client := net.Pipe()
	DeferCleanup(client.Close)
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte(payload))
		if closeAfter {
			_ = client.Close()
		}
	}()
	return relay.ReadRequest(server, opts)
}

var _ = Describe("ReadRequest", func() {
	var opts relay.Options

	BeforeEach(func() {
		opts = relay.Options{ClientTimeout: 200 * time.Millisecond}
	})

	It("returns a bodiless request unchanged", func() {
		req := "GET /index.html HTTP/1.1\r\nHost: example\r\n\r\n"
		got, err := frame(req, false, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal(req))
	})

	It("reads exactly the declared body", func() {
		req := "POST /submit HTTP/1.1\r\nHost: example\r\ncontent-length: 5\r\n\r\nhello"
		got, err := frame(req+"GET /next HTTP/1.1\r\n\r\n", false, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal(req))
	})

	It("treats an unparsable Content-Length as zero", func() {
		head := "POST / HTTP/1.1\r\nContent-Length: abc\r\n\r\n"
		got, err := frame(head+"hello", false, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal(head))
	})

	It("forwards a short body when the client closes", func() {
		req := "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabcd"
		got, err := frame(req, true, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal(req))
	})

	It("forwards a short body when the client stalls", func() {
		req := "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabcd"
		start := time.Now()
		got, err := frame(req, false, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal(req))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("times out when the head never ends", func() {
		_, err := frame("GET / HTTP/1.1\r\nHost: example\r\n", false, opts)
		Expect(err).To(MatchError(relay.ErrRequestTimeout))
	})

	It("reports a client that closes mid-head", func() {
		_, err := frame("GET / HTTP/1.1\r\nHost: ex", true, opts)
		Expect(err).To(MatchError(relay.ErrIncompleteRequest))
	})

	It("rejects an oversized head", func() {
		opts.MaxHeaderBytes = 1024
		req := "GET / HTTP/1.1\r\nX-Filler: " + strings.Repeat("a", 4096) + "\r\n\r\n"
		_, err := frame(req, false, opts)
		Expect(err).To(MatchError(relay.ErrRequestTooLarge))
	})

	It("rejects a declared body above the limit", func() {
		opts.MaxBodyBytes = 100
		_, err := frame("POST / HTTP/1.1\r\nContent-Length: 1000\r\n\r\n", false, opts)
		Expect(err).To(MatchError(relay.ErrRequestTooLarge))
	})

	DescribeTable("rejects malformed request lines",
		func(line string) {
			_, err := frame(line+"\r\nHost: example\r\n\r\n", false, opts)
			Expect(err).To(MatchError(relay.ErrMalformedRequest))
		},
		Entry("single token", "HELLO"),
		Entry("missing version", "GET /"),
		Entry("wrong protocol", "GET / FTP/1.0"),
		Entry("extra token", "GET / extra HTTP/1.1"),
	)
})
