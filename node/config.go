// Package node is the orchestrator of spec §4.I: it wires storage,
// mempool, consensus, sync and RPC into one running process, drives
// apply_block, and runs the node's main loop (inbound RPC, auditor
// catch-up, staker consensus, startup recovery).
package node

import (
	"net/url"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
)

// Mode selects which of spec §4.I's two roles this process plays.
type Mode string

const (
	ModeAuditor Mode = "auditor"
	ModeStaker  Mode = "staker"
)

// Config is the bootstrap document spec §6 names for a running node: CAS
// backend, block-store directory, p2p/rpc listen addresses, peer list
// for auditor-mode catch-up, and (staker mode only) this instance's
// consensus signing key.
type Config struct {
	Mode Mode

	Network    model.NetworkID
	GenesisCfg *state.GenesisConfig

	CASStoreURL string // e.g. "leveldb:///var/themelio/smt.db" or "memory://"
	HistoryDir  string
	VoteJournalDir string

	P2PListenAddr    string
	P2PPrivateKeyPath string
	Bootstrap        []string
	Advertise        bool

	RPCListenAddr string
	HealthAddr    string

	// PeerRPCAddrs are dialed round-robin by the auditor catch-up loop.
	PeerRPCAddrs []string

	// SigningSK/SigningPK are required in staker mode only.
	SigningSK crypto.SecretKey
	SigningPK crypto.PublicKey

	KafkaBrokers []string
	KafkaTopic   string

	RPCRateLimitPerSec float64
	RPCRateBurst       int
}

// casURL parses CASStoreURL, defaulting to an in-memory store so a
// misconfigured auditor still boots (degraded, without durable SMT
// storage) rather than failing closed.
func (c *Config) casURL() (*url.URL, error) {
	raw := c.CASStoreURL
	if raw == "" {
		raw = "memory://"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.New(errors.ErrConfiguration, "parsing cas_store_url %q", raw, err)
	}
	return u, nil
}

func (c *Config) validate() error {
	if c.GenesisCfg == nil {
		return errors.New(errors.ErrConfiguration, "genesis config is required")
	}
	if c.HistoryDir == "" {
		return errors.New(errors.ErrConfiguration, "history_dir is required")
	}
	if c.Mode == ModeStaker {
		if len(c.SigningSK) == 0 || len(c.SigningPK) == 0 {
			return errors.New(errors.ErrConfiguration, "staker mode requires signing_sk/signing_pk")
		}
		if c.VoteJournalDir == "" {
			return errors.New(errors.ErrConfiguration, "staker mode requires vote_journal_dir")
		}
	}
	if c.RPCRateLimitPerSec <= 0 {
		c.RPCRateLimitPerSec = defaultRPCRateLimit
	}
	if c.RPCRateBurst <= 0 {
		c.RPCRateBurst = defaultRPCRateBurst
	}
	return nil
}
