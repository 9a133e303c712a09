package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/strategy"
)

var _ = Describe("Leastconn", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewLeastConnStrategy()
		backends = newBackends(3)
	})

	Describe("SelectBackend", func() {
		It("should select backend with fewest connections", func() {
			backends[0].IncrementConn()
			backends[0].IncrementConn()
			backends[2].IncrementConn()

			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[1]))
		})

		It("should break ties by pool order", func() {
			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[0]))

			backends[0].IncrementConn()
			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[1]))
		})

		It("should never pick a backend with strictly more connections than another", func() {
			loads := []int{3, 1, 1}
			for i, n := range loads {
				for j := 0; j < n; j++ {
					backends[i].IncrementConn()
				}
			}

			selected := strat.SelectBackend(backends)
			for _, b := range backends {
				Expect(selected.ActiveConnections()).To(BeNumerically("<=", b.ActiveConnections()))
			}
			Expect(selected).To(BeIdenticalTo(backends[1]))
		})

		It("should return nil for an empty list", func() {
			Expect(strat.SelectBackend(nil)).To(BeNil())
		})
	})
})
