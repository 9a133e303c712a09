// Package acceptor owns the client-facing listener. It accepts TCP
// connections, hands each to its own relay goroutine and routes requests
// through the backend pool using the algorithm and sticky setting in force
// at the moment of selection.
//
// Basic usage:
//
//	a := acceptor.New(pool, acceptor.Options{Address: ":8080"}, logger, collector)
//	go a.Serve(ctx)
//	<-a.Ready()
//	...
//	err := a.Shutdown(shutdownCtx)
package acceptor
