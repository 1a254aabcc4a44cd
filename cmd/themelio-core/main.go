// Command themelio-core boots a single node process in either auditor or
// staker mode (spec §4.I). Flags are parsed with urfave/cli/v2; this
// binary has only one mode of operation, so a single cli.App carries
// every flag rather than a dispatch on os.Args[0].
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/node"
	"github.com/themelio-labs/themelio-core/state"
	"github.com/themelio-labs/themelio-core/ulogger"
)

func main() {
	app := &cli.App{
		Name:  "themelio-core",
		Usage: "a permissionless proof-of-stake full node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: "auditor", Usage: "auditor or staker"},
			&cli.UintFlag{Name: "network", Value: 0, Usage: "network id"},
			&cli.StringFlag{Name: "genesis", Required: true, Usage: "path to genesis config YAML/JSON"},
			&cli.StringFlag{Name: "cas-store-url", Value: "memory://", Usage: "leveldb:///path or memory://"},
			&cli.StringFlag{Name: "history-dir", Required: true},
			&cli.StringFlag{Name: "vote-journal-dir", Usage: "required in staker mode"},
			&cli.StringFlag{Name: "p2p-listen-addr", Value: "/ip4/0.0.0.0/tcp/9000"},
			&cli.StringFlag{Name: "p2p-private-key-path"},
			&cli.StringSliceFlag{Name: "bootstrap", Usage: "multiaddrs of bootstrap peers"},
			&cli.BoolFlag{Name: "advertise", Value: true},
			&cli.StringFlag{Name: "rpc-listen-addr", Value: "0.0.0.0:9001"},
			&cli.StringFlag{Name: "health-addr", Value: "0.0.0.0:8000"},
			&cli.StringSliceFlag{Name: "peer-rpc-addr", Usage: "auditor catch-up peers"},
			&cli.StringFlag{Name: "signing-key-path", Usage: "raw 64-byte ed25519 private key, required in staker mode"},
			&cli.StringSliceFlag{Name: "kafka-broker"},
			&cli.StringFlag{Name: "kafka-topic", Value: "themelio-blocks"},
			&cli.Float64Flag{Name: "rpc-rate-limit", Value: 50},
			&cli.IntFlag{Name: "rpc-rate-burst", Value: 100},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := ulogger.New("themelio-core")

	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n, err := node.New(ctx, logger, cfg)
	if err != nil {
		return err
	}

	logger.Infof("themelio-core starting in %s mode", cfg.Mode)
	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func buildConfig(c *cli.Context) (node.Config, error) {
	raw, err := os.ReadFile(c.String("genesis"))
	if err != nil {
		return node.Config{}, fmt.Errorf("reading genesis config: %w", err)
	}
	genesisCfg, err := state.LoadGenesisConfigYAML(raw)
	if err != nil {
		return node.Config{}, err
	}

	mode := node.ModeAuditor
	if c.String("mode") == string(node.ModeStaker) {
		mode = node.ModeStaker
	}

	cfg := node.Config{
		Mode:               mode,
		Network:            model.NetworkID(c.Uint("network")),
		GenesisCfg:         genesisCfg,
		CASStoreURL:        c.String("cas-store-url"),
		HistoryDir:         c.String("history-dir"),
		VoteJournalDir:     c.String("vote-journal-dir"),
		P2PListenAddr:      c.String("p2p-listen-addr"),
		P2PPrivateKeyPath:  c.String("p2p-private-key-path"),
		Bootstrap:          c.StringSlice("bootstrap"),
		Advertise:          c.Bool("advertise"),
		RPCListenAddr:      c.String("rpc-listen-addr"),
		HealthAddr:         c.String("health-addr"),
		PeerRPCAddrs:       c.StringSlice("peer-rpc-addr"),
		KafkaBrokers:       c.StringSlice("kafka-broker"),
		KafkaTopic:         c.String("kafka-topic"),
		RPCRateLimitPerSec: c.Float64("rpc-rate-limit"),
		RPCRateBurst:       c.Int("rpc-rate-burst"),
	}

	if mode == node.ModeStaker {
		pk, sk, err := loadSigningKey(c.String("signing-key-path"))
		if err != nil {
			return node.Config{}, err
		}
		cfg.SigningPK = pk
		cfg.SigningSK = sk
	}

	return cfg, nil
}

// loadSigningKey reads a raw 64-byte Ed25519 private key (seed || public
// key, the format ed25519.PrivateKey marshals to) from path. The public
// key is the key's own trailing 32 bytes, so no separate key file is
// needed for it.
func loadSigningKey(path string) (crypto.PublicKey, crypto.SecretKey, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("staker mode requires -signing-key-path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading signing key: %w", err)
	}
	if len(raw) != 64 {
		return nil, nil, fmt.Errorf("signing key at %s: expected 64 raw bytes, got %d", path, len(raw))
	}
	sk := crypto.SecretKey(raw)
	pk := crypto.PublicKey(raw[32:])
	return pk, sk, nil
}
