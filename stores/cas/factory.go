package cas

import (
	"fmt"
	"net/url"

	"github.com/themelio-labs/themelio-core/stores/cas/leveldb"
	"github.com/themelio-labs/themelio-core/stores/cas/memory"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// NewStore dispatches on storeURL's scheme to build the backend the SMT
// CAS should use, mirroring the teacher's stores/blob factory's
// URL-scheme-per-backend convention: "memory://" for tests and ephemeral
// auditors, "leveldb:///path/to/smt.db" for the production node directory
// layout (spec §6).
func NewStore(logger ulogger.Logger, storeURL *url.URL) (Store, error) {
	switch storeURL.Scheme {
	case "memory":
		return memory.New(), nil
	case "leveldb":
		logger = logger.New("cas-leveldb")
		store, err := leveldb.New(storeURL.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("opened leveldb cas store at %s", storeURL.Path)
		return store, nil
	default:
		return nil, fmt.Errorf("cas: unknown store scheme %q", storeURL.Scheme)
	}
}
