package audit

import (
	"errors"
	"fmt"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/merkle"
)

// ErrEmptyTrail is returned when a batch commitment is requested over a
// trail with no entries.
var ErrEmptyTrail = errors.New("audit: cannot commit an empty trail")

// BatchRoot commits the current trail to a single Merkle root over the
// entry hashes, in sequence order. The root is a compact fingerprint of
// the whole trail a consumer can hold instead of the full export.
func (t *Trail) BatchRoot() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return "", ErrEmptyTrail
	}
	tree, err := t.commitLocked()
	if err != nil {
		return "", err
	}
	return tree.RootHex(), nil
}

// InclusionProof produces a Merkle inclusion proof that the entry at
// sequence is part of the trail as currently committed. Pair it with
// BatchRoot taken at the same moment; appending entries afterward changes
// the root.
func (t *Trail) InclusionProof(sequence int) (*merkle.InclusionProof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if sequence < 0 || sequence >= len(t.entries) {
		return nil, ErrEntryNotFound
	}
	tree, err := t.commitLocked()
	if err != nil {
		return nil, err
	}
	return tree.Prove(sequence)
}

func (t *Trail) commitLocked() (*merkle.Tree, error) {
	hashes := make([]string, len(t.entries))
	for i, e := range t.entries {
		hashes[i] = e.EntryHash
	}
	tree, err := merkle.CommitHex(hashes)
	if err != nil {
		return nil, fmt.Errorf("audit: commit trail: %w", err)
	}
	return tree, nil
}

// VerifyInclusion checks that entryHash belongs to a trail whose
// BatchRoot was rootHex, using only the proof: no trail required.
func VerifyInclusion(entryHash string, proof *merkle.InclusionProof, rootHex string) (bool, error) {
	return merkle.VerifyHex(entryHash, proof, rootHex)
}
