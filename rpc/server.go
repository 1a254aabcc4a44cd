package rpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// Listener wraps a grpc.Server bound to the sync ServiceDesc, serving
// until ctx is cancelled — the node orchestrator's inbound-RPC task of
// spec §4.I's main loop step 1 ("accept inbound RPCs concurrently").
type Listener struct {
	addr   string
	server *grpc.Server
	logger ulogger.Logger
}

// Listen records addr and registers backend under the sync ServiceDesc,
// mirroring the teacher's util.StartGRPCServer(ctx, logger, name,
// registerFn) call convention — binding addr and serving are both done by
// Serve so the caller controls when the listener actually starts accepting.
func Listen(logger ulogger.Logger, addr string, backend SyncServer) (*Listener, error) {
	server := grpc.NewServer(grpc.UnaryInterceptor(ErrorInterceptor()))
	RegisterSyncServer(server, backend)

	return &Listener{
		addr:   addr,
		server: server,
		logger: logger.New("rpc"),
	}, nil
}

// Serve blocks accepting connections until ctx is cancelled, then
// gracefully stops the grpc server.
func (l *Listener) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", l.addr)
	if err != nil {
		return errors.New(errors.ErrService, "listening on %s", l.addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		l.logger.Infof("sync rpc listening on %s", l.addr)
		errCh <- l.server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		l.server.GracefulStop()
		return nil
	case err := <-errCh:
		return errors.New(errors.ErrService, "grpc server exited", err)
	}
}

// Stop immediately halts the grpc server without waiting for in-flight
// calls to finish.
func (l *Listener) Stop() {
	l.server.Stop()
}
