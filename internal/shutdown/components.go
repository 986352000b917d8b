package shutdown

import (
	"context"
	"io"
	"net/http"
)

// stopComponent adapts a stop function to Component.
type stopComponent struct {
	name string
	stop func(ctx context.Context) error
}

func (c stopComponent) Name() string { return c.name }

func (c stopComponent) Shutdown(ctx context.Context) error { return c.stop(ctx) }

// NewHTTPServerComponent stops the API listener. Requests already running,
// such as a scan in progress, are allowed to finish until ctx expires.
func NewHTTPServerComponent(name string, server *http.Server) Component {
	return stopComponent{name: name, stop: server.Shutdown}
}

// NewCloserComponent closes closer, typically the store. Register it first so
// it is closed after everything that still writes to it.
func NewCloserComponent(name string, closer io.Closer) Component {
	return stopComponent{name: name, stop: func(context.Context) error {
		return closer.Close()
	}}
}

// Stopper is implemented by the outbox worker.
type Stopper interface {
	Stop()
}

// GracefulStopper is implemented by the gRPC health server.
type GracefulStopper interface {
	GracefulStop()
}

// NewGRPCServerComponent stops the gRPC health server. Its health status turns
// NOT_SERVING before connections are drained.
func NewGRPCServerComponent(name string, server GracefulStopper) Component {
	return stopComponent{name: name, stop: func(ctx context.Context) error {
		return waitFor(ctx, server.GracefulStop)
	}}
}

// NewWorkerComponent stops the outbox worker. A message being delivered when
// ctx expires stays claimed and is requeued the next time the worker starts.
func NewWorkerComponent(name string, worker Stopper) Component {
	return stopComponent{name: name, stop: func(ctx context.Context) error {
		return waitFor(ctx, worker.Stop)
	}}
}

// waitFor runs stop in the background and gives up when ctx is done.
func waitFor(ctx context.Context, stop func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		stop()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
