// Package smt implements the sparse Merkle tree engine of spec §4.B: a
// binary radix trie of depth 256, keyed by a plain BLAKE3 hash of the
// caller's key, backed by a content-addressed store. Every operation is
// pure with respect to its root: Set returns a new root and leaves the old
// one (and everything reachable from it) untouched, which is what lets
// historical heights stay readable after later heights are sealed.
package smt

import (
	"context"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/stores/cas"
)

// Depth is the fixed trie depth: every path is exactly 256 bits.
const Depth = 256

// EmptyRoot is the root of the empty tree (spec: "root(empty) = 0^32").
var EmptyRoot = crypto.ZeroHash

// Path maps an arbitrary-length key to its 256-bit trie position.
func Path(key []byte) crypto.Hash {
	return crypto.Plain(key)
}

func bitAt(path crypto.Hash, depth int) bool {
	byteIdx := depth / 8
	bitIdx := 7 - (depth % 8)
	return path[byteIdx]&(1<<uint(bitIdx)) != 0
}

// internalNode is the CAS-persisted encoding of a non-leaf trie node.
type internalNode struct {
	Left  crypto.Hash
	Right crypto.Hash
}

func (n *internalNode) EncodeStd(w *stdcode.Writer) {
	w.Fixed(n.Left[:])
	w.Fixed(n.Right[:])
}

func (n *internalNode) DecodeStd(r *stdcode.Reader) error {
	l, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	rr, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	n.Left = crypto.HashFromBytes(l)
	n.Right = crypto.HashFromBytes(rr)
	return nil
}

// leafNode is the CAS-persisted encoding of a leaf: the original key is
// kept alongside the value so Walk can reconstruct (key, value) pairs
// that a bare trie path could never recover.
type leafNode struct {
	Key   []byte
	Value []byte
}

func (n *leafNode) EncodeStd(w *stdcode.Writer) {
	w.Blob(n.Key)
	w.Blob(n.Value)
}

func (n *leafNode) DecodeStd(r *stdcode.Reader) error {
	k, err := r.Blob()
	if err != nil {
		return err
	}
	v, err := r.Blob()
	if err != nil {
		return err
	}
	n.Key = k
	n.Value = v
	return nil
}

func loadInternal(ctx context.Context, store cas.Store, hash crypto.Hash) (*internalNode, error) {
	raw, err := store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	var n internalNode
	if err := stdcode.Unmarshal(raw, &n); err != nil {
		return nil, errors.New(errors.ErrDatabaseCorruption, "smt: corrupt internal node at %s", hash, err)
	}
	return &n, nil
}

func loadLeaf(ctx context.Context, store cas.Store, hash crypto.Hash) (*leafNode, error) {
	raw, err := store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	var n leafNode
	if err := stdcode.Unmarshal(raw, &n); err != nil {
		return nil, errors.New(errors.ErrDatabaseCorruption, "smt: corrupt leaf node at %s", hash, err)
	}
	return &n, nil
}

func storeInternal(ctx context.Context, store cas.Store, n *internalNode) (crypto.Hash, error) {
	hash := crypto.Keyed(crypto.DomainSMTNode, n.Left[:], n.Right[:])
	raw := stdcode.Marshal(n)
	if err := store.Put(ctx, hash, raw); err != nil {
		return crypto.ZeroHash, err
	}
	return hash, nil
}

func storeLeaf(ctx context.Context, store cas.Store, n *leafNode) (crypto.Hash, error) {
	raw := stdcode.Marshal(n)
	hash := crypto.Keyed(crypto.DomainSMTLeaf, raw)
	if err := store.Put(ctx, hash, raw); err != nil {
		return crypto.ZeroHash, err
	}
	return hash, nil
}

// Set writes key->value into the tree rooted at root and returns the new
// root. An empty value prunes the key (spec: "setting a key to an empty
// value prunes it").
func Set(ctx context.Context, store cas.Store, root crypto.Hash, key, value []byte) (crypto.Hash, error) {
	path := Path(key)
	return setAt(ctx, store, root, path, key, value, 0)
}

func setAt(ctx context.Context, store cas.Store, node crypto.Hash, path crypto.Hash, key, value []byte, depth int) (crypto.Hash, error) {
	if depth == Depth {
		if len(value) == 0 {
			return EmptyRoot, nil
		}
		hash, err := storeLeaf(ctx, store, &leafNode{Key: key, Value: value})
		return hash, err
	}

	var left, right crypto.Hash
	if node != EmptyRoot {
		n, err := loadInternal(ctx, store, node)
		if err != nil {
			return EmptyRoot, err
		}
		left, right = n.Left, n.Right
	}

	var err error
	if bitAt(path, depth) {
		right, err = setAt(ctx, store, right, path, key, value, depth+1)
	} else {
		left, err = setAt(ctx, store, left, path, key, value, depth+1)
	}
	if err != nil {
		return EmptyRoot, err
	}

	if left == EmptyRoot && right == EmptyRoot {
		return EmptyRoot, nil
	}
	return storeInternal(ctx, store, &internalNode{Left: left, Right: right})
}

// Get returns the value at key (nil if absent) along with the 256-element
// sibling path proving that result against root.
func Get(ctx context.Context, store cas.Store, root crypto.Hash, key []byte) ([]byte, Proof, error) {
	path := Path(key)
	var proof Proof

	node := root
	for depth := 0; depth < Depth; depth++ {
		if node == EmptyRoot {
			// Empty subtree: every remaining sibling is the empty hash,
			// and the value is absent.
			return nil, proof, nil
		}
		n, err := loadInternal(ctx, store, node)
		if err != nil {
			return nil, proof, err
		}
		if bitAt(path, depth) {
			proof.Siblings[depth] = n.Left
			node = n.Right
		} else {
			proof.Siblings[depth] = n.Right
			node = n.Left
		}
	}

	if node == EmptyRoot {
		return nil, proof, nil
	}
	leaf, err := loadLeaf(ctx, store, node)
	if err != nil {
		return nil, proof, err
	}
	return leaf.Value, proof, nil
}

// WalkFunc is called once per (key, value) pair present in the tree, in
// unspecified order. Returning an error aborts the walk.
type WalkFunc func(key, value []byte) error

// Walk enumerates every (key, value) pair in the tree rooted at root.
func Walk(ctx context.Context, store cas.Store, root crypto.Hash, fn WalkFunc) error {
	return walkAt(ctx, store, root, 0, fn)
}

func walkAt(ctx context.Context, store cas.Store, node crypto.Hash, depth int, fn WalkFunc) error {
	if node == EmptyRoot {
		return nil
	}
	if depth == Depth {
		leaf, err := loadLeaf(ctx, store, node)
		if err != nil {
			return err
		}
		return fn(leaf.Key, leaf.Value)
	}
	n, err := loadInternal(ctx, store, node)
	if err != nil {
		return err
	}
	if err := walkAt(ctx, store, n.Left, depth+1, fn); err != nil {
		return err
	}
	return walkAt(ctx, store, n.Right, depth+1, fn)
}
