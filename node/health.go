package node

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
)

// healthStatus is the JSON body /health serves, grounded on the teacher's
// own healthFunc convention (main.go's "/health"/"/health/readiness"
// endpoints) but collapsed to a single handler since this node has no
// per-service health aggregator to fan out to.
type healthStatus struct {
	Mode    Mode             `json:"mode"`
	Height  model.BlockHeight `json:"height"`
	TipHash string           `json:"tip_hash"`
}

func serveHealth(ctx context.Context, n *Node) error {
	if n.cfg.HealthAddr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		tip := n.Tip()
		status := healthStatus{
			Mode:    n.cfg.Mode,
			Height:  tip.Header.Height,
			TipHash: tip.Header.Hash().String(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	srv := &http.Server{Addr: n.cfg.HealthAddr, Handler: mux}

	lis, err := net.Listen("tcp", n.cfg.HealthAddr)
	if err != nil {
		return errors.New(errors.ErrService, "binding health endpoint on %s", n.cfg.HealthAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		n.logger.Infof("health endpoint listening on http://%s/health", n.cfg.HealthAddr)
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.New(errors.ErrService, "health endpoint exited", err)
	}
}
