package hash

import "sort"

type MerkleTree struct {
	leaves []string
}

func NewMerkleTree() *MerkleTree {
	return &MerkleTree{
		leaves: make([]string, 0),
	}
}

func (mt *MerkleTree) AddLeafHash(hash string) {
	mt.leaves = append(mt.leaves, hash)
}

// GetRoot returns the root over the sorted leaves.
func (mt *MerkleTree) GetRoot() string {
	if len(mt.leaves) == 0 {
		return ""
	}

	sortedLeaves := make([]string, len(mt.leaves))
	copy(sortedLeaves, mt.leaves)
	sort.Strings(sortedLeaves)

	return mt.calculateRoot(sortedLeaves)
}

// calculateRoot carries an unpaired node up a level as is. Pairing it with
// itself would make {a,b,c} and {a,b,c,c} share a root once c sorts last.
func (mt *MerkleTree) calculateRoot(hashes []string) string {
	if len(hashes) == 1 {
		return hashes[0]
	}

	nextLevel := make([]string, 0, (len(hashes)+1)/2)

	for i := 0; i < len(hashes); i += 2 {
		if i+1 == len(hashes) {
			nextLevel = append(nextLevel, hashes[i])
			continue
		}
		nextLevel = append(nextLevel, CalculateString(hashes[i]+hashes[i+1]))
	}

	return mt.calculateRoot(nextLevel)
}

func (mt *MerkleTree) Reset() {
	mt.leaves = make([]string, 0)
}

func (mt *MerkleTree) LeafCount() int {
	return len(mt.leaves)
}
