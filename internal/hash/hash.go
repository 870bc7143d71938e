package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

const (
	AlgorithmSHA256     = "sha256"
	AlgorithmBLAKE2b256 = "blake2b_256"
	AlgorithmBLAKE3     = "blake3"

	// DefaultAlgorithm is used when no algorithm is configured.
	DefaultAlgorithm = AlgorithmSHA256

	// seedSize is the number of random bytes fed to the digest per identifier.
	seedSize = 32
)

// Algorithms lists every supported digest algorithm.
var Algorithms = []string{AlgorithmSHA256, AlgorithmBLAKE2b256, AlgorithmBLAKE3}

// ValidAlgorithm reports whether name is a supported digest algorithm.
func ValidAlgorithm(name string) bool {
	for _, a := range Algorithms {
		if a == name {
			return true
		}
	}
	return false
}

// Digest returns the raw digest of data using the named algorithm.
func Digest(algorithm string, data []byte) ([]byte, error) {
	switch algorithm {
	case AlgorithmSHA256, "":
		sum := sha256.Sum256(data)
		return sum[:], nil
	case AlgorithmBLAKE2b256:
		sum := blake2b.Sum256(data)
		return sum[:], nil
	case AlgorithmBLAKE3:
		sum := blake3.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// Generator produces unpredictable entry identifiers. An identifier is the hex
// digest of fresh random bytes and has no relationship to the appended value.
type Generator struct {
	algorithm string
	random    io.Reader
}

// NewGenerator returns a Generator digesting crypto/rand output with the given
// algorithm.
func NewGenerator(algorithm string) (*Generator, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	if !ValidAlgorithm(algorithm) {
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
	return &Generator{
		algorithm: algorithm,
		random:    rand.Reader,
	}, nil
}

// Algorithm returns the digest algorithm name.
func (g *Generator) Algorithm() string {
	return g.algorithm
}

// Generate returns a new 64 character hex identifier.
func (g *Generator) Generate() (string, error) {
	seed := make([]byte, seedSize)
	if _, err := io.ReadFull(g.random, seed); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	sum, err := Digest(g.algorithm, seed)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
