package btree

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, pageSize, branchingFactor int) *BPTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbordb.db")
	tree, err := Create(path, pageSize, branchingFactor, []FieldKind{FieldVarchar})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func rec(s string) Record { return Record{Type: 0, Payload: []byte(s)} }

func requireSearch(t *testing.T, tree *BPTree, key int32, want string) {
	t.Helper()
	got, ok, err := tree.Search(key)
	require.NoError(t, err)
	require.True(t, ok, "key %d not found", key)
	require.Equal(t, want, string(got.Payload))
}

func requireAbsent(t *testing.T, tree *BPTree, key int32) {
	t.Helper()
	_, ok, err := tree.Search(key)
	require.NoError(t, err)
	require.False(t, ok, "key %d unexpectedly present", key)
}

// TestScenario1 is §8 scenario 1.
func TestScenario1(t *testing.T) {
	tree := newTestTree(t, 128, 4)

	require.NoError(t, tree.Insert(102, rec("sdn")))
	require.NoError(t, tree.Update(102, rec("tuz")))
	require.NoError(t, tree.Insert(103, rec("zzzhk")))
	require.NoError(t, tree.Update(102, rec("sxmm")))
	require.NoError(t, tree.Delete(103))

	requireSearch(t, tree, 102, "sxmm")
	requireAbsent(t, tree, 103)
}

// TestScenario2 is §8 scenario 2.
func TestScenario2(t *testing.T) {
	tree := newTestTree(t, 128, 4)

	require.NoError(t, tree.Insert(102, rec("mslqw")))
	require.NoError(t, tree.Insert(103, rec("f")))
	require.NoError(t, tree.Insert(104, rec("i")))
	require.NoError(t, tree.Update(103, rec("yooa")))
	require.NoError(t, tree.Update(103, rec("s")))

	requireSearch(t, tree, 102, "mslqw")
	requireSearch(t, tree, 103, "s")
	requireSearch(t, tree, 104, "i")
}

// TestScenario3 is §8 scenario 3: five inserts into a B=4 tree force a root
// split; every key remains searchable afterward.
func TestScenario3(t *testing.T) {
	tree := newTestTree(t, 128, 4)

	payloads := map[int32]string{
		101: "aaaa",
		102: "bbbb",
		103: "cccc",
		104: "dddd",
		105: "eeee",
	}
	for _, key := range []int32{101, 102, 103, 104, 105} {
		require.NoError(t, tree.Insert(key, rec(payloads[key])))
	}
	for key, payload := range payloads {
		requireSearch(t, tree, key, payload)
	}
}

// TestScenario4 is §8 scenario 4.
func TestScenario4(t *testing.T) {
	tree := newTestTree(t, 128, 4)

	require.NoError(t, tree.Insert(101, rec("cxmtvdrlofv")))
	require.NoError(t, tree.Delete(101))
	require.NoError(t, tree.Insert(102, rec("a")))
	require.NoError(t, tree.Insert(103, rec("b")))
	require.NoError(t, tree.Insert(104, rec("c")))
	require.NoError(t, tree.Update(103, rec("tao")))
	require.NoError(t, tree.Update(102, rec("qqkr")))
	require.NoError(t, tree.Delete(103))
	require.NoError(t, tree.Update(104, rec("d")))
	require.NoError(t, tree.Insert(105, rec("e")))
	require.NoError(t, tree.Delete(104))
	require.NoError(t, tree.Insert(106, rec("f")))
	require.NoError(t, tree.Insert(107, rec("g")))

	requireAbsent(t, tree, 101)
	requireAbsent(t, tree, 103)
	requireAbsent(t, tree, 104)
	requireSearch(t, tree, 102, "qqkr")
	requireSearch(t, tree, 105, "e")
	requireSearch(t, tree, 106, "f")
	requireSearch(t, tree, 107, "g")
}

// TestDuplicateKeyAndKeyNotFound covers §7's semantic error sentinels.
func TestDuplicateKeyAndKeyNotFound(t *testing.T) {
	tree := newTestTree(t, 128, 4)

	require.NoError(t, tree.Insert(1, rec("x")))
	require.ErrorIs(t, tree.Insert(1, rec("y")), ErrDuplicateKey)
	require.ErrorIs(t, tree.Update(2, rec("z")), ErrKeyNotFound)
	require.ErrorIs(t, tree.Delete(2), ErrKeyNotFound)

	require.NoError(t, tree.Delete(1))
	require.ErrorIs(t, tree.Delete(1), ErrKeyNotFound)
}

// TestRoundTripAfterClose covers Open reconstructing allocator state and
// continuing to serve the same data.
func TestRoundTripAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbordb.db")
	tree, err := Create(path, 128, 4, []FieldKind{FieldVarchar})
	require.NoError(t, err)

	for key := int32(100); key < 120; key++ {
		require.NoError(t, tree.Insert(key, rec(fmt.Sprintf("v%d", key))))
	}
	require.NoError(t, tree.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	for key := int32(100); key < 120; key++ {
		requireSearch(t, reopened, key, fmt.Sprintf("v%d", key))
	}

	require.NoError(t, reopened.Insert(1000, rec("fresh")))
	requireSearch(t, reopened, 1000, "fresh")
}

// TestPropertyAgainstReferenceMap exercises the universal invariant from §8:
// a long randomized sequence of insert/update/delete against unique keys
// must always agree with a reference map, including through splits, merges,
// and redistributions (this sequence's key range and churn drive B past its
// split and merge thresholds many times over).
func TestPropertyAgainstReferenceMap(t *testing.T) {
	tree := newTestTree(t, 256, 4)
	reference := make(map[int32]string)

	rng := rand.New(rand.NewSource(42))
	const keySpace = 40
	const steps = 2000

	for i := 0; i < steps; i++ {
		key := int32(rng.Intn(keySpace))
		payload := fmt.Sprintf("v%d-%d", key, i)
		_, present := reference[key]

		switch {
		case !present:
			err := tree.Insert(key, rec(payload))
			require.NoError(t, err)
			reference[key] = payload
		case rng.Intn(2) == 0:
			err := tree.Update(key, rec(payload))
			require.NoError(t, err)
			reference[key] = payload
		default:
			err := tree.Delete(key)
			require.NoError(t, err)
			delete(reference, key)
		}

		if i%97 == 0 {
			for k := int32(0); k < keySpace; k++ {
				want, ok := reference[k]
				got, found, err := tree.Search(k)
				require.NoError(t, err)
				require.Equal(t, ok, found, "key %d presence mismatch at step %d", k, i)
				if ok {
					require.Equal(t, want, string(got.Payload), "key %d value mismatch at step %d", k, i)
				}
			}
		}
	}

	for k := int32(0); k < keySpace; k++ {
		want, ok := reference[k]
		got, found, err := tree.Search(k)
		require.NoError(t, err)
		require.Equal(t, ok, found, "final key %d presence mismatch", k)
		if ok {
			require.Equal(t, want, string(got.Payload), "final key %d value mismatch", k)
		}
	}
}

// TestDeleteDownToSingleChildRoot covers the case where repeated merges
// collapse a height-3+ tree's root INTERMEDIATE to a single child, which the
// root's exemption from the occupancy floor leaves uncorrected (§9's root
// exemption). Deleting below that point must keep descending into the sole
// child rather than getting stuck trying to redistribute or merge a
// sibling-less node.
func TestDeleteDownToSingleChildRoot(t *testing.T) {
	tree := newTestTree(t, 128, 4)

	const numKeys = 80
	for i := int32(0); i < numKeys; i++ {
		require.NoError(t, tree.Insert(i, rec(fmt.Sprintf("v%d", i))))
	}

	for i := int32(0); i < numKeys-1; i++ {
		require.NoError(t, tree.Delete(i))
	}

	requireSearch(t, tree, numKeys-1, fmt.Sprintf("v%d", numKeys-1))
	for i := int32(0); i < numKeys-1; i++ {
		requireAbsent(t, tree, i)
	}

	require.NoError(t, tree.Insert(numKeys, rec("fresh")))
	requireSearch(t, tree, numKeys, "fresh")
	requireSearch(t, tree, numKeys-1, fmt.Sprintf("v%d", numKeys-1))
}
