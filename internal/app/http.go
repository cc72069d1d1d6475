package app

import (
	"context"
	"net"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api"
	"github.com/yz174/kliq/pkg/logger"
)

// newServer builds the fasthttp server around the routed, authenticated
// handler chain.
func (a *App) newServer() *fasthttp.Server {
	c := a.eff.Config.Server
	const (
		readBufferSize       = 64 * 1024
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	// long-polls hold the response open for up to the poll timeout
	writeTimeout := c.WriteTimeout.Duration()
	if pt := a.eff.Config.Live.PollTimeout.Duration() + 5*time.Second; writeTimeout < pt {
		writeTimeout = pt
	}
	return &fasthttp.Server{
		Name:                 "kliq",
		Handler:              api.Handler(a.handlers, a.gateway),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(c.MaxRequestBody.Int64()),
		ReadTimeout:          c.ReadTimeout.Duration(),
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
		ReduceMemoryUsage:    true,
	}
}

// serve listens on the configured address until ctx is cancelled. TLS is
// left to a fronting proxy.
func (a *App) serve(ctx context.Context) error {
	ln := a.ln
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.eff.Addr); err != nil {
			return err
		}
	}
	a.srv = a.newServer()
	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.Serve(ln) }()
	logger.Info("http_listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.cancelBase()
		if err := a.srv.Shutdown(); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
		}
		<-errCh
		return nil
	}
}
