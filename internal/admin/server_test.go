package admin_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/relay-balancer/internal/acceptor"
	"github.com/angeloszaimis/relay-balancer/internal/admin"
	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/loadbalancer"
)

var _ = Describe("Admin Server", func() {
	var api *admin.API

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		pool := loadbalancer.NewPool(backend.New("127.0.0.1", 9001, "BE-1"))
		acc := acceptor.New(pool, acceptor.Options{Address: "127.0.0.1:0"}, logger, nil)
		api = admin.NewAPI(acc, pool, nil, logger)
	})

	shutdown := func(srv *admin.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(srv.Shutdown(ctx)).To(Succeed())
	}

	Context("server creation", func() {
		It("binds before serving and reports the real address", func() {
			srv, err := admin.NewServer("127.0.0.1:0", api)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(shutdown, srv)

			addr, ok := srv.Addr().(*net.TCPAddr)
			Expect(ok).To(BeTrue())
			Expect(addr.Port).NotTo(BeZero())
		})

		DescribeTable("rejects bad addresses",
			func(addr string) {
				srv, err := admin.NewServer(addr, api)
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			},
			Entry("too many colons", "invalid:host:port"),
			Entry("missing port", "localhost"),
			Entry("empty port", "localhost:"),
			Entry("non-numeric port", ":abc"),
			Entry("port out of range", ":70000"),
			Entry("bad host", "bad_host!:9090"),
		)

		It("fails when the address is taken", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(ln.Close)

			_, err = admin.NewServer(ln.Addr().String(), api)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("server lifecycle", func() {
		It("serves the control API until shut down", func() {
			srv, err := admin.NewServer("127.0.0.1:0", api)
			Expect(err).NotTo(HaveOccurred())

			served := make(chan error, 1)
			go func() { served <- srv.Serve() }()

			resp, err := http.Get("http://" + srv.Addr().String() + "/status")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var status admin.Status
			Expect(json.NewDecoder(resp.Body).Decode(&status)).To(Succeed())
			Expect(status.Backends).To(HaveLen(1))

			shutdown(srv)
			Eventually(served).Should(Receive(BeNil()))
		})

		It("releases the port when shut down before serving", func() {
			srv, err := admin.NewServer("127.0.0.1:0", api)
			Expect(err).NotTo(HaveOccurred())
			addr := srv.Addr().String()

			shutdown(srv)

			ln, err := net.Listen("tcp", addr)
			Expect(err).NotTo(HaveOccurred())
			Expect(ln.Close()).To(Succeed())
		})
	})
})
