package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
)

func leaves(n int) []string {
	out := make([]string, n)
	for i := range out {
		sum := sha256.Sum256([]byte(fmt.Sprintf("leaf-%d", i)))
		out[i] = hex.EncodeToString(sum[:])
	}
	return out
}

func buildTree(t *testing.T, ls ...string) *MerkleTreeBuilder {
	t.Helper()
	builder := NewMerkleTreeBuilder(AlgorithmSHA256)
	for _, l := range ls {
		builder.AddLeafHash(l)
	}
	if err := builder.Build(); err != nil {
		t.Fatalf("Failed to build tree: %v", err)
	}
	return builder
}

func TestMerkleTreeBuilder_Basic(t *testing.T) {
	builder := NewMerkleTreeBuilder(AlgorithmSHA256)

	for _, leaf := range leaves(2) {
		builder.AddLeafHash(leaf)
	}

	if err := builder.Build(); err != nil {
		t.Fatalf("Failed to build tree: %v", err)
	}

	root := builder.GetRoot()
	if root == "" {
		t.Fatal("Root hash is empty")
	}

	t.Logf("Merkle Root: %s", root)
}

func TestMerkleTreeBuilder_Empty(t *testing.T) {
	builder := NewMerkleTreeBuilder("")

	if err := builder.Build(); err == nil {
		t.Error("Expected error building empty tree")
	}
	if builder.GetRoot() != "" {
		t.Error("Root should be empty for empty tree")
	}
}

func TestMerkleTreeBuilder_SingleLeaf(t *testing.T) {
	builder := NewMerkleTreeBuilder(AlgorithmSHA256)
	leaf := leaves(1)[0]
	builder.AddLeafHash(leaf)

	if err := builder.Build(); err != nil {
		t.Fatal(err)
	}
	want, err := hashLeaf(AlgorithmSHA256, leaf)
	if err != nil {
		t.Fatal(err)
	}
	if builder.GetRoot() != want {
		t.Errorf("Single leaf root should be the leaf digest, got %s", builder.GetRoot())
	}
	if builder.GetRoot() == leaf {
		t.Error("Single leaf root must not equal the raw leaf")
	}
}

func TestMerkleTreeBuilder_OrderMatters(t *testing.T) {
	ls := leaves(3)

	builder1 := NewMerkleTreeBuilder(AlgorithmSHA256)
	builder2 := NewMerkleTreeBuilder(AlgorithmSHA256)
	builder3 := NewMerkleTreeBuilder(AlgorithmSHA256)
	for _, l := range ls {
		builder1.AddLeafHash(l)
		builder2.AddLeafHash(l)
	}
	builder3.AddLeafHash(ls[0])
	builder3.AddLeafHash(ls[2])
	builder3.AddLeafHash(ls[1])

	for _, b := range []*MerkleTreeBuilder{builder1, builder2, builder3} {
		if err := b.Build(); err != nil {
			t.Fatal(err)
		}
	}

	if builder1.GetRoot() != builder2.GetRoot() {
		t.Error("Same leaves in same order should produce same root")
	}
	if builder1.GetRoot() == builder3.GetRoot() {
		t.Error("Reordered leaves should produce a different root")
	}
}

func TestMerkleTreeBuilder_AlgorithmMatters(t *testing.T) {
	ls := leaves(4)

	sha := NewMerkleTreeBuilder(AlgorithmSHA256)
	b3 := NewMerkleTreeBuilder(AlgorithmBLAKE3)
	for _, l := range ls {
		sha.AddLeafHash(l)
		b3.AddLeafHash(l)
	}
	if err := sha.Build(); err != nil {
		t.Fatal(err)
	}
	if err := b3.Build(); err != nil {
		t.Fatal(err)
	}

	if sha.GetRoot() == b3.GetRoot() {
		t.Error("Different algorithms should produce different roots")
	}
}

func TestMerkleProof_Verify(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 7, 16} {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			ls := leaves(n)
			builder := NewMerkleTreeBuilder(AlgorithmBLAKE2b256)
			for _, l := range ls {
				builder.AddLeafHash(l)
			}
			if err := builder.Build(); err != nil {
				t.Fatalf("Failed to build tree: %v", err)
			}
			root := builder.GetRoot()

			for i, l := range ls {
				proof, err := builder.GetProof(l)
				if err != nil {
					t.Fatalf("Failed to get proof: %v", err)
				}
				if proof.LeafIndex != i {
					t.Errorf("Expected leaf index %d, got %d", i, proof.LeafIndex)
				}
				if !proof.Verify(root) {
					t.Errorf("Valid proof for leaf %d failed verification", i)
				}
			}

			proof, _ := builder.GetProof(ls[0])
			wrongRoot := "0000000000000000000000000000000000000000000000000000000000000000"
			if proof.Verify(wrongRoot) {
				t.Error("Proof should not verify against wrong root")
			}
		})
	}
}

func TestMerkleTreeBuilder_GetProofErrors(t *testing.T) {
	builder := NewMerkleTreeBuilder(AlgorithmSHA256)
	builder.AddLeafHash("abcd")

	if _, err := builder.GetProof("abcd"); err == nil {
		t.Error("Expected error before Build")
	}

	if err := builder.Build(); err != nil {
		t.Fatal(err)
	}
	if _, err := builder.GetProof("missing"); err == nil {
		t.Error("Expected error for unknown leaf")
	}
}

func TestMerkleTreeBuilder_DuplicatedTailChangesRoot(t *testing.T) {
	ls := leaves(3)

	three := buildTree(t, ls...)
	four := buildTree(t, ls[0], ls[1], ls[2], ls[2])

	if three.GetRoot() == four.GetRoot() {
		t.Error("Repeating the last leaf must change the root")
	}
}

func TestMerkleTreeBuilder_OddLeafPromoted(t *testing.T) {
	ls := leaves(3)
	builder := buildTree(t, ls...)

	a, _ := hashLeaf(AlgorithmSHA256, ls[0])
	b, _ := hashLeaf(AlgorithmSHA256, ls[1])
	c, _ := hashLeaf(AlgorithmSHA256, ls[2])
	ab, _ := hashNode(AlgorithmSHA256, a, b)
	want, _ := hashNode(AlgorithmSHA256, ab, c)

	if builder.GetRoot() != want {
		t.Errorf("Expected root %s, got %s", want, builder.GetRoot())
	}

	proof, err := builder.GetProof(ls[2])
	if err != nil {
		t.Fatal(err)
	}
	if len(proof.Siblings) != 1 {
		t.Errorf("Promoted leaf should need one sibling, got %d", len(proof.Siblings))
	}
}

func TestMerkleProof_InteriorNodeIsNotALeaf(t *testing.T) {
	ls := leaves(4)
	builder := buildTree(t, ls...)
	root := builder.GetRoot()

	a, _ := hashLeaf(AlgorithmSHA256, ls[0])
	b, _ := hashLeaf(AlgorithmSHA256, ls[1])
	c, _ := hashLeaf(AlgorithmSHA256, ls[2])
	d, _ := hashLeaf(AlgorithmSHA256, ls[3])
	ab, _ := hashNode(AlgorithmSHA256, a, b)
	cd, _ := hashNode(AlgorithmSHA256, c, d)
	if got, _ := hashNode(AlgorithmSHA256, ab, cd); got != root {
		t.Fatalf("Unexpected tree shape: root %s, rebuilt %s", root, got)
	}

	forged := &MerkleProof{
		LeafHash:   ab,
		LeafIndex:  0,
		Siblings:   []string{cd},
		Directions: []bool{true},
		algorithm:  AlgorithmSHA256,
	}
	if forged.Verify(root) {
		t.Error("An interior node must not verify as a leaf")
	}
}

func TestMerkleProof_MismatchedDirections(t *testing.T) {
	builder := buildTree(t, leaves(2)...)
	proof, err := builder.GetProof(leaves(2)[0])
	if err != nil {
		t.Fatal(err)
	}
	proof.Directions = nil
	if proof.Verify(builder.GetRoot()) {
		t.Error("Proof with missing directions must not verify")
	}
}
