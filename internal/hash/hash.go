package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/witnz/rowdiff/internal/results"
)

func CalculateString(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Fingerprint hashes the canonical key of a row, so structurally equal rows
// share a fingerprint whatever their column order.
func Fingerprint(row results.Row) string {
	return CalculateString(row.Key())
}

// TableDigest returns the Merkle root over the fingerprints of every row.
// Leaves are sorted before the tree is built, which makes the digest depend
// on the rows and their multiplicities only. An empty table digests to "".
func TableDigest(t results.Table) string {
	mt := NewMerkleTree()
	for _, row := range t {
		mt.AddLeafHash(Fingerprint(row))
	}
	return mt.GetRoot()
}
