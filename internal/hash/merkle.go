package hash

import (
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep leaf and interior digests apart, so an interior node
// can never be presented as a leaf.
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

type MerkleNode struct {
	Hash  string
	Left  *MerkleNode
	Right *MerkleNode
}

// MerkleProof is an inclusion proof for one leaf. Directions[i] is true when
// Siblings[i] sits to the right of the running hash.
type MerkleProof struct {
	LeafHash   string
	LeafIndex  int
	Siblings   []string
	Directions []bool
	algorithm  string
}

// MerkleTreeBuilder builds a Merkle tree over leaf hashes in insertion order.
// Leaf order is significant: the same identifiers appended in a different
// order produce a different root. Leaves are digested as 0x00||leaf and
// interior nodes as 0x01||left||right. A node without a sibling is promoted
// to the next level unchanged.
type MerkleTreeBuilder struct {
	algorithm string
	leaves    []string
	positions map[string]int
	levels    [][]*MerkleNode
}

func NewMerkleTreeBuilder(algorithm string) *MerkleTreeBuilder {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	return &MerkleTreeBuilder{
		algorithm: algorithm,
		leaves:    make([]string, 0),
		positions: make(map[string]int),
	}
}

// AddLeafHash appends a leaf. Duplicate leaves keep their first position for
// proof lookups.
func (mtb *MerkleTreeBuilder) AddLeafHash(leaf string) {
	if _, ok := mtb.positions[leaf]; !ok {
		mtb.positions[leaf] = len(mtb.leaves)
	}
	mtb.leaves = append(mtb.leaves, leaf)
	mtb.levels = nil
}

func (mtb *MerkleTreeBuilder) LeafCount() int {
	return len(mtb.leaves)
}

func (mtb *MerkleTreeBuilder) Build() error {
	if len(mtb.leaves) == 0 {
		return fmt.Errorf("no leaves to build tree")
	}

	level := make([]*MerkleNode, len(mtb.leaves))
	for i, leaf := range mtb.leaves {
		h, err := hashLeaf(mtb.algorithm, leaf)
		if err != nil {
			return err
		}
		level[i] = &MerkleNode{Hash: h}
	}

	levels := [][]*MerkleNode{level}
	for len(level) > 1 {
		var next []*MerkleNode
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			left, right := level[i], level[i+1]
			parent, err := hashNode(mtb.algorithm, left.Hash, right.Hash)
			if err != nil {
				return err
			}
			next = append(next, &MerkleNode{Hash: parent, Left: left, Right: right})
		}
		levels = append(levels, next)
		level = next
	}

	mtb.levels = levels
	return nil
}

func (mtb *MerkleTreeBuilder) GetRoot() string {
	if len(mtb.levels) == 0 {
		return ""
	}
	return mtb.levels[len(mtb.levels)-1][0].Hash
}

func (mtb *MerkleTreeBuilder) GetProof(leaf string) (*MerkleProof, error) {
	if len(mtb.levels) == 0 {
		return nil, fmt.Errorf("tree not built")
	}
	idx, ok := mtb.positions[leaf]
	if !ok {
		return nil, fmt.Errorf("leaf not found in tree: %s", leaf)
	}

	proof := &MerkleProof{
		LeafHash:   leaf,
		LeafIndex:  idx,
		Siblings:   make([]string, 0),
		Directions: make([]bool, 0),
		algorithm:  mtb.algorithm,
	}

	pos := idx
	for _, level := range mtb.levels[:len(mtb.levels)-1] {
		switch {
		case pos%2 == 1:
			proof.Siblings = append(proof.Siblings, level[pos-1].Hash)
			proof.Directions = append(proof.Directions, false)
		case pos+1 < len(level):
			proof.Siblings = append(proof.Siblings, level[pos+1].Hash)
			proof.Directions = append(proof.Directions, true)
		}
		// A promoted node contributes no sibling at this level.
		pos /= 2
	}

	return proof, nil
}

// Algorithm returns the digest algorithm the proof was built with.
func (mp *MerkleProof) Algorithm() string {
	return mp.algorithm
}

func (mp *MerkleProof) Verify(expectedRoot string) bool {
	if len(mp.Siblings) != len(mp.Directions) {
		return false
	}

	current, err := hashLeaf(mp.algorithm, mp.LeafHash)
	if err != nil {
		return false
	}
	for i, sibling := range mp.Siblings {
		if mp.Directions[i] {
			current, err = hashNode(mp.algorithm, current, sibling)
		} else {
			current, err = hashNode(mp.algorithm, sibling, current)
		}
		if err != nil {
			return false
		}
	}

	return current == expectedRoot
}

func hashLeaf(algorithm, leaf string) (string, error) {
	buf := make([]byte, 0, 1+len(leaf))
	buf = append(buf, leafPrefix)
	buf = append(buf, leaf...)
	return digestHex(algorithm, buf)
}

func hashNode(algorithm, left, right string) (string, error) {
	buf := make([]byte, 0, 1+len(left)+len(right))
	buf = append(buf, nodePrefix)
	buf = append(buf, left...)
	buf = append(buf, right...)
	return digestHex(algorithm, buf)
}

func digestHex(algorithm string, data []byte) (string, error) {
	sum, err := Digest(algorithm, data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
