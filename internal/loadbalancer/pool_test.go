package loadbalancer_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/relay-balancer/internal/strategy"
)

var _ = Describe("Pool", func() {
	var (
		pool       *loadbalancer.Pool
		b1, b2, b3 *backend.Backend
	)

	BeforeEach(func() {
		b1 = backend.New("127.0.0.1", 9001, "B1")
		b2 = backend.New("127.0.0.1", 9002, "B2")
		b3 = backend.New("127.0.0.1", 9003, "B3")
		pool = loadbalancer.NewPool(b1, b2, b3)
	})

	selectNames := func(alg strategy.Algorithm, sticky bool, client string, n int) []string {
		names := make([]string, 0, n)
		for i := 0; i < n; i++ {
			b, err := pool.Select(alg, sticky, client)
			Expect(err).NotTo(HaveOccurred())
			names = append(names, b.Name())
		}
		return names
	}

	Describe("Lookup", func() {
		It("should find backends by name", func() {
			b, ok := pool.Lookup("B2")
			Expect(ok).To(BeTrue())
			Expect(b).To(BeIdenticalTo(b2))

			_, ok = pool.Lookup("B9")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Candidates", func() {
		It("should keep only healthy backends in pool order", func() {
			b2.SetHealthy(false)
			Expect(pool.Candidates()).To(Equal([]*backend.Backend{b1, b3}))
		})

		It("should fall back to the whole pool when nothing is healthy", func() {
			b1.SetHealthy(false)
			b2.SetHealthy(false)
			b3.SetHealthy(false)
			Expect(pool.Candidates()).To(HaveLen(3))
		})
	})

	Describe("Select", func() {
		Context("with an empty pool", func() {
			It("should return ErrEmptyPool", func() {
				empty := loadbalancer.NewPool()
				b, err := empty.Select(strategy.RoundRobin, false, "10.0.0.1")
				Expect(err).To(MatchError(loadbalancer.ErrEmptyPool))
				Expect(b).To(BeNil())
			})
		})

		Context("round-robin", func() {
			It("should route six requests B1,B2,B3,B1,B2,B3", func() {
				Expect(selectNames(strategy.RoundRobin, false, "10.0.0.1", 6)).
					To(Equal([]string{"B1", "B2", "B3", "B1", "B2", "B3"}))
			})

			It("should resume its rotation after another algorithm was used", func() {
				Expect(selectNames(strategy.RoundRobin, false, "10.0.0.1", 2)).
					To(Equal([]string{"B1", "B2"}))
				_, err := pool.Select(strategy.LeastConn, false, "10.0.0.1")
				Expect(err).NotTo(HaveOccurred())
				Expect(selectNames(strategy.RoundRobin, false, "10.0.0.1", 2)).
					To(Equal([]string{"B3", "B1"}))
			})

			It("should visit every healthy backend once before repeating", func() {
				b2.SetHealthy(false)
				names := selectNames(strategy.RoundRobin, false, "10.0.0.1", 2)
				Expect(names).To(ConsistOf("B1", "B3"))
			})

			It("should still return a backend when all are unhealthy", func() {
				b1.SetHealthy(false)
				b2.SetHealthy(false)
				b3.SetHealthy(false)

				b, err := pool.Select(strategy.RoundRobin, false, "10.0.0.1")
				Expect(err).NotTo(HaveOccurred())
				Expect(pool.Backends()).To(ContainElement(b))
			})

			It("should not lose turns under concurrent callers", func() {
				var (
					wg     sync.WaitGroup
					mu     sync.Mutex
					counts = make(map[string]int)
				)
				for i := 0; i < 300; i++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						b, err := pool.Select(strategy.RoundRobin, false, "10.0.0.1")
						Expect(err).NotTo(HaveOccurred())
						mu.Lock()
						counts[b.Name()]++
						mu.Unlock()
					}()
				}
				wg.Wait()
				Expect(counts).To(Equal(map[string]int{"B1": 100, "B2": 100, "B3": 100}))
			})
		})

		Context("least-connections", func() {
			It("should return B2 for counts {B1:2, B2:0, B3:1}", func() {
				b1.IncrementConn()
				b1.IncrementConn()
				b3.IncrementConn()

				b, err := pool.Select(strategy.LeastConn, false, "10.0.0.1")
				Expect(err).NotTo(HaveOccurred())
				Expect(b).To(BeIdenticalTo(b2))
			})

			It("should ignore unhealthy backends even if idle", func() {
				b1.IncrementConn()
				b2.SetHealthy(false)
				b3.IncrementConn()

				b, err := pool.Select(strategy.LeastConn, false, "10.0.0.1")
				Expect(err).NotTo(HaveOccurred())
				Expect(b).To(BeIdenticalTo(b1))
			})
		})

		Context("sticky-by-ip", func() {
			It("should pin a client to its first backend", func() {
				names := selectNames(strategy.RoundRobin, true, "10.0.0.5", 5)
				Expect(names).To(HaveEach("B1"))

				target, ok := pool.StickyTarget("10.0.0.5")
				Expect(ok).To(BeTrue())
				Expect(target).To(Equal("B1"))
			})

			It("should keep rotating for different clients", func() {
				first, _ := pool.Select(strategy.RoundRobin, true, "10.0.0.5")
				second, _ := pool.Select(strategy.RoundRobin, true, "10.0.0.6")
				Expect(first).NotTo(BeIdenticalTo(second))
			})

			It("should re-pin when the sticky backend becomes unhealthy", func() {
				// move the cursor so 10.0.0.5 lands on B2
				_, _ = pool.Select(strategy.RoundRobin, false, "10.0.0.9")
				b, _ := pool.Select(strategy.RoundRobin, true, "10.0.0.5")
				Expect(b).To(BeIdenticalTo(b2))

				b2.SetHealthy(false)

				next, err := pool.Select(strategy.RoundRobin, true, "10.0.0.5")
				Expect(err).NotTo(HaveOccurred())
				Expect(next).NotTo(BeIdenticalTo(b2))
				Expect(next.IsHealthy()).To(BeTrue())

				Expect(selectNames(strategy.RoundRobin, true, "10.0.0.5", 4)).To(HaveEach(next.Name()))
			})

			It("should not use the mapping when sticky is disabled", func() {
				_, _ = pool.Select(strategy.RoundRobin, true, "10.0.0.5")
				Expect(selectNames(strategy.RoundRobin, false, "10.0.0.5", 2)).To(Equal([]string{"B2", "B3"}))
			})

			It("should bypass least-connections while pinned", func() {
				b, _ := pool.Select(strategy.LeastConn, true, "10.0.0.5")
				Expect(b).To(BeIdenticalTo(b1))

				b1.IncrementConn()
				b1.IncrementConn()

				again, _ := pool.Select(strategy.LeastConn, true, "10.0.0.5")
				Expect(again).To(BeIdenticalTo(b1))
			})
		})

		Context("unknown algorithm", func() {
			It("should fall back to the first candidate", func() {
				b, err := pool.Select(strategy.Algorithm("random"), false, "10.0.0.1")
				Expect(err).NotTo(HaveOccurred())
				Expect(b).To(BeIdenticalTo(b1))
			})
		})
	})
})
