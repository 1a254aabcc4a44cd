package consensus

import (
	"encoding/binary"

	"github.com/btcsuite/goleveldb/leveldb"
	gerrors "github.com/btcsuite/goleveldb/leveldb/errors"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
)

// VoteJournal is the on-disk "I already voted at this height" record
// spec §4.G's crash-recovery behavior requires: after a restart, a
// participant must refuse to vote for any proposal at a height it
// previously voted at, even if the vote never made it out over gossip.
// It reuses the teacher's embedded leveldb engine (the same one
// stores/cas/leveldb persists smt.db with) keyed by (epoch, height)
// rather than by content hash, since this is a small mutable index, not
// a content-addressed blob store.
type VoteJournal struct {
	db *leveldb.DB
}

// OpenVoteJournal opens (or creates) the journal at path.
func OpenVoteJournal(path string) (*VoteJournal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.New(errors.ErrCorrupt, "opening vote journal at %s", path, err)
	}
	return &VoteJournal{db: db}, nil
}

func journalKey(epoch uint64, height model.BlockHeight) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], epoch)
	binary.BigEndian.PutUint64(key[8:], uint64(height))
	return key
}

// RecordVote persists that this instance voted for hash at (epoch, height).
// It is an error to record a second, different hash at the same
// (epoch, height) — callers must check Voted first.
func (j *VoteJournal) RecordVote(epoch uint64, height model.BlockHeight, hash model.HashVal) error {
	if err := j.db.Put(journalKey(epoch, height), hash[:], nil); err != nil {
		return errors.New(errors.ErrCorrupt, "recording vote journal entry", err)
	}
	return nil
}

// Voted reports whether this instance already voted at (epoch, height),
// and if so, for which block hash.
func (j *VoteJournal) Voted(epoch uint64, height model.BlockHeight) (model.HashVal, bool, error) {
	v, err := j.db.Get(journalKey(epoch, height), nil)
	if err == gerrors.ErrNotFound {
		return model.HashVal{}, false, nil
	}
	if err != nil {
		return model.HashVal{}, false, errors.New(errors.ErrCorrupt, "reading vote journal entry", err)
	}
	return crypto.HashFromBytes(v), true, nil
}

func (j *VoteJournal) Close() error {
	if err := j.db.Close(); err != nil {
		return errors.New(errors.ErrCorrupt, "closing vote journal", err)
	}
	return nil
}
