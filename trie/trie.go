// Package trie implements a hex-nibble Merkle-Patricia trie: a radix
// structure over nibble-sequence keys with leaf/extension/branch node
// shapes, content-addressed by SHA3-256, batch-committed to a backing
// store. Every mutation is applied to an in-memory write cache first and
// only persisted on Commit.
package trie

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/storage"
)

// ErrNotFound is returned by Get when the key is absent from the trie.
var ErrNotFound = errors.New("trie: key not found")

// ErrNoStore is returned by Commit on a trie with no backing store —
// hash-only tries used for transient root computation never attach one.
var ErrNoStore = errors.New("trie: no backing store attached")

// emptyRoot is the root hash of a trie with no entries.
const emptyRoot = ""

// Trie is a single versioned view of a Merkle-Patricia trie rooted at a
// content hash. Writes accumulate in an in-memory cache; Commit flushes
// them to db atomically. A Trie is not safe for concurrent use.
type Trie struct {
	db    storage.DB
	root  string
	cache map[string][]byte
}

// New opens a trie at an existing root hash (hex SHA3-256 of its root
// node), or the empty root for a fresh trie. db may be nil for a
// transient, hash-only trie used only to compute a root.
func New(root string, db storage.DB) *Trie {
	return &Trie{db: db, root: root, cache: make(map[string][]byte)}
}

// NewEmpty opens a fresh, empty trie backed by db.
func NewEmpty(db storage.DB) *Trie {
	return New(emptyRoot, db)
}

// Key computes the trie key for a raw lookup key: hex(SHA3-256(raw)),
// giving every key a fixed nibble length regardless of its natural
// representation (an address, a tx index, a vote hash, ...).
func Key(raw []byte) string {
	return crypto.Hash(raw)
}

// Root returns the current root hash.
func (t *Trie) Root() string {
	return t.root
}

// getNode resolves a node hash to its decoded node, checking the pending
// write cache before the backing store. A "" hash, or any lookup miss,
// is the none node — mirrors the reference trie treating a missing key
// as an empty subtree rather than an error.
func (t *Trie) getNode(hash string) (*node, error) {
	if hash == "" {
		return &node{Kind: kindNone}, nil
	}
	if raw, ok := t.cache[hash]; ok {
		return decodeNode(raw)
	}
	if t.db == nil {
		return &node{Kind: kindNone}, nil
	}
	raw, err := t.db.Get([]byte(hash))
	if err != nil {
		return &node{Kind: kindNone}, nil
	}
	t.cache[hash] = raw
	return decodeNode(raw)
}

// setNode serializes n, stores it in the write cache under its content
// hash, and returns that hash.
func (t *Trie) setNode(n *node) (string, error) {
	raw, err := encodeNode(n)
	if err != nil {
		return "", err
	}
	hash := crypto.Hash(raw)
	t.cache[hash] = raw
	return hash, nil
}

// Put inserts value at keyHex, a hex string read one nibble per character,
// and returns the new root hash.
func (t *Trie) Put(keyHex string, value []byte) (string, error) {
	nibbles, err := hexToNibbles(keyHex)
	if err != nil {
		return "", err
	}
	root, err := t.getNode(t.root)
	if err != nil {
		return "", err
	}
	next, err := t.add(root, nibbles, value)
	if err != nil {
		return "", err
	}
	hash, err := t.setNode(next)
	if err != nil {
		return "", err
	}
	t.root = hash
	return hash, nil
}

func (t *Trie) add(n *node, key, value []byte) (*node, error) {
	switch n.Kind {
	case kindNone:
		return &node{Kind: kindLeaf, Key: addPrefix(key, true), Value: value}, nil
	case kindExtension, kindLeaf:
		return t.addEncodedNode(n, key, value)
	case kindBranch:
		return t.addBranch(n, key, value)
	default:
		return n, nil
	}
}

func (t *Trie) addBranch(n *node, key, value []byte) (*node, error) {
	if len(key) == 0 {
		n.Value = value
		return n, nil
	}
	idx := key[0]
	child, err := t.getNode(n.Children[idx])
	if err != nil {
		return nil, err
	}
	next, err := t.add(child, key[1:], value)
	if err != nil {
		return nil, err
	}
	hash, err := t.setNode(next)
	if err != nil {
		return nil, err
	}
	n.Children[idx] = hash
	return n, nil
}

func (t *Trie) addEncodedNode(n *node, key, value []byte) (*node, error) {
	isLeaf := n.Kind == kindLeaf
	rawParentKey := removePrefix(n.Key, isLeaf)
	common := commonPrefixLen(rawParentKey, key)
	prefix := rawParentKey[:common]
	parentKey := rawParentKey[common:]
	currentKey := key[common:]

	var (
		next *node
		err  error
	)

	switch {
	case len(parentKey) == 0 && len(currentKey) == 0:
		if isLeaf {
			return &node{Kind: kindLeaf, Key: n.Key, Value: value}, nil
		}
		child, gerr := t.getNode(n.Child)
		if gerr != nil {
			return nil, gerr
		}
		next, err = t.add(child, currentKey, value)

	case len(parentKey) == 0:
		if !isLeaf {
			child, gerr := t.getNode(n.Child)
			if gerr != nil {
				return nil, gerr
			}
			next, err = t.add(child, currentKey, value)
		} else {
			branch := &node{Kind: kindBranch, Value: n.Value}
			leafHash, serr := t.setNode(&node{
				Kind:  kindLeaf,
				Key:   addPrefix(currentKey[1:], true),
				Value: value,
			})
			if serr != nil {
				return nil, serr
			}
			branch.Children[currentKey[0]] = leafHash
			next = branch
		}

	default:
		next, err = t.addNewBranch(isLeaf, n, parentKey, currentKey, value)
	}
	if err != nil {
		return nil, err
	}

	if len(prefix) > 0 {
		hash, serr := t.setNode(next)
		if serr != nil {
			return nil, serr
		}
		return &node{Kind: kindExtension, Key: addPrefix(prefix, false), Child: hash}, nil
	}
	return next, nil
}

func (t *Trie) addNewBranch(isLeaf bool, n *node, parentKey, currentKey, value []byte) (*node, error) {
	branch := &node{Kind: kindBranch}

	switch {
	case len(parentKey) == 1 && !isLeaf:
		branch.Children[parentKey[0]] = n.Child
	case !isLeaf:
		hash, err := t.setNode(&node{
			Kind:  kindExtension,
			Key:   addPrefix(parentKey[1:], false),
			Child: n.Child,
		})
		if err != nil {
			return nil, err
		}
		branch.Children[parentKey[0]] = hash
	default:
		hash, err := t.setNode(&node{
			Kind:  kindLeaf,
			Key:   addPrefix(parentKey[1:], true),
			Value: n.Value,
		})
		if err != nil {
			return nil, err
		}
		branch.Children[parentKey[0]] = hash
	}

	if len(currentKey) > 0 {
		hash, err := t.setNode(&node{
			Kind:  kindLeaf,
			Key:   addPrefix(currentKey[1:], true),
			Value: value,
		})
		if err != nil {
			return nil, err
		}
		branch.Children[currentKey[0]] = hash
	} else {
		branch.Value = value
	}
	return branch, nil
}

// Get returns the value stored at keyHex, or ErrNotFound.
func (t *Trie) Get(keyHex string) ([]byte, error) {
	nibbles, err := hexToNibbles(keyHex)
	if err != nil {
		return nil, err
	}
	root, err := t.getNode(t.root)
	if err != nil {
		return nil, err
	}
	val, err := t.getDecodeNode(root, nibbles)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, ErrNotFound
	}
	return val, nil
}

func (t *Trie) getDecodeNode(n *node, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return t.terminal(n), nil
	}
	switch n.Kind {
	case kindNone:
		return nil, nil
	case kindBranch:
		return t.decodeBranch(n, key)
	case kindLeaf, kindExtension:
		return t.decodeLeafOrExtension(n, key)
	}
	return nil, nil
}

// terminal returns the value living at this node when a lookup key ends
// here: a leaf or branch's stored value. An extension has no value of its
// own; reaching one with zero remaining key cannot occur for the fixed
// nibble-length keys this trie is used with.
func (t *Trie) terminal(n *node) []byte {
	switch n.Kind {
	case kindLeaf, kindBranch:
		return n.Value
	default:
		return nil
	}
}

func (t *Trie) decodeBranch(n *node, key []byte) ([]byte, error) {
	child, err := t.getNode(n.Children[key[0]])
	if err != nil {
		return nil, err
	}
	return t.getDecodeNode(child, key[1:])
}

func (t *Trie) decodeLeafOrExtension(n *node, key []byte) ([]byte, error) {
	isLeaf := n.Kind == kindLeaf
	parentKey := removePrefix(n.Key, isLeaf)

	if isLeaf {
		if bytes.Equal(parentKey, key) {
			return n.Value, nil
		}
		return nil, nil
	}

	if !isPrefixOf(parentKey, key) {
		return nil, nil
	}
	common := commonPrefixLen(parentKey, key)
	child, err := t.getNode(n.Child)
	if err != nil {
		return nil, err
	}
	return t.getDecodeNode(child, key[common:])
}

// Commit flushes the in-memory write cache to the backing store in one
// atomic batch and returns the current root. Fails with ErrNoStore if no
// backing store was attached.
func (t *Trie) Commit() (string, error) {
	if t.db == nil {
		return "", ErrNoStore
	}
	batch := t.db.NewBatch()
	for k, v := range t.cache {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return "", fmt.Errorf("trie: commit: %w", err)
	}
	return t.root, nil
}

// Clear discards the in-memory write cache without touching the backing
// store or the current root.
func (t *Trie) Clear() {
	t.cache = make(map[string][]byte)
}

// Cached reports whether hash is present in the pending write cache.
func (t *Trie) Cached(hash string) bool {
	_, ok := t.cache[hash]
	return ok
}
