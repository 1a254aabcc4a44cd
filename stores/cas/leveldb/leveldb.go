// Package leveldb implements a persistent cas.Store over the teacher's
// embedded key-value engine (github.com/btcsuite/goleveldb), the
// production backend for smt.db (spec §6: "smt.db: the content-addressed
// store (mapping hash -> bytes)").
package leveldb

import (
	"context"

	"github.com/btcsuite/goleveldb/leveldb"
	gerrors "github.com/btcsuite/goleveldb/leveldb/errors"
	"github.com/btcsuite/goleveldb/leveldb/opt"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
)

type LevelDB struct {
	db *leveldb.DB
}

func New(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.New(errors.ErrCorrupt, "opening leveldb cas at %s", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(_ context.Context, hash crypto.Hash) ([]byte, error) {
	v, err := l.db.Get(hash[:], nil)
	if err == gerrors.ErrNotFound {
		return nil, errors.New(errors.ErrNotFound, "cas: hash %s not found", hash)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCorrupt, "cas: reading hash %s", hash, err)
	}
	return v, nil
}

func (l *LevelDB) Insert(ctx context.Context, data []byte) (crypto.Hash, error) {
	hash := crypto.Plain(data)
	if err := l.Put(ctx, hash, data); err != nil {
		return hash, err
	}
	return hash, nil
}

func (l *LevelDB) Put(_ context.Context, hash crypto.Hash, data []byte) error {
	if err := l.db.Put(hash[:], data, nil); err != nil {
		return errors.New(errors.ErrCorrupt, "cas: writing hash %s", hash, err)
	}
	return nil
}

func (l *LevelDB) Exists(_ context.Context, hash crypto.Hash) (bool, error) {
	ok, err := l.db.Has(hash[:], nil)
	if err != nil {
		return false, errors.New(errors.ErrCorrupt, "cas: checking hash %s", hash, err)
	}
	return ok, nil
}

func (l *LevelDB) Health(_ context.Context) (int, string, error) {
	return 200, "leveldb cas store", nil
}

func (l *LevelDB) Close(_ context.Context) error {
	if err := l.db.Close(); err != nil {
		return errors.New(errors.ErrCorrupt, "closing leveldb cas", err)
	}
	return nil
}
