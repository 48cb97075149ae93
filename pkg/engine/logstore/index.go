package logstore

import (
	"github.com/google/btree"

	"github.com/ssargent/pinkv/pkg/engine"
)

const indexDegree = 32

// keyIndex maps keys to the location of their latest live record. It is
// not safe for concurrent use; Store guards it.
type keyIndex struct {
	tree *btree.BTreeG[indexEntry]
}

func newKeyIndex() *keyIndex {
	return &keyIndex{
		tree: btree.NewG(indexDegree, func(a, b indexEntry) bool {
			return a.key < b.key
		}),
	}
}

func (idx *keyIndex) put(entry indexEntry) {
	idx.tree.ReplaceOrInsert(entry)
}

func (idx *keyIndex) get(key []byte) (indexEntry, bool) {
	return idx.tree.Get(indexEntry{key: string(key)})
}

func (idx *keyIndex) delete(key []byte) {
	idx.tree.Delete(indexEntry{key: string(key)})
}

func (idx *keyIndex) len() int {
	return idx.tree.Len()
}

// liveBytes sums the encoded size of every indexed record.
func (idx *keyIndex) liveBytes() int64 {
	var total int64
	idx.tree.Ascend(func(e indexEntry) bool {
		total += e.size
		return true
	})
	return total
}

// familyKeys counts the indexed keys of each column family.
func (idx *keyIndex) familyKeys(families *engine.Families) map[string]int {
	counts := make(map[string]int)
	for _, name := range families.Names() {
		counts[name] = 0
	}
	idx.tree.Ascend(func(e indexEntry) bool {
		if name, _, err := families.Split([]byte(e.key)); err == nil {
			counts[name]++
		}
		return true
	})
	return counts
}
