package state

import (
	"encoding/binary"
	"fmt"
	"sort"

	"vitrine/native/market"
)

var (
	snapshotLatestKey = []byte("market/snapshot/latest")
	snapshotIndexKey  = []byte("market/snapshot/index")
	snapshotPrefix    = "market/snapshot/seq/"
)

// DefaultSnapshotRetention is the number of snapshots kept by default.
const DefaultSnapshotRetention = 16

func snapshotKey(sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", snapshotPrefix, sequence))
}

// SnapshotStore persists marketplace snapshots keyed by the receipt sequence
// they were taken at.
type SnapshotStore struct {
	kv     *Manager
	retain int
}

// NewSnapshotStore constructs a store keeping at most retain snapshots.
func NewSnapshotStore(kv *Manager, retain int) *SnapshotStore {
	if retain <= 0 {
		retain = DefaultSnapshotRetention
	}
	return &SnapshotStore{kv: kv, retain: retain}
}

// Save writes the snapshot, moves the latest pointer and prunes snapshots
// beyond the retention limit in one atomic batch. Saving twice at the same
// sequence replaces the earlier copy.
func (s *SnapshotStore) Save(snap *market.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("state: nil snapshot")
	}
	sequences, err := s.Sequences()
	if err != nil {
		return err
	}
	if i := sort.Search(len(sequences), func(i int) bool { return sequences[i] >= snap.Sequence }); i == len(sequences) || sequences[i] != snap.Sequence {
		sequences = append(sequences, snap.Sequence)
		sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })
	}
	var drop []uint64
	if len(sequences) > s.retain {
		drop = sequences[:len(sequences)-s.retain]
		sequences = sequences[len(sequences)-s.retain:]
	}

	batch := s.kv.NewBatch()
	if err := batch.Put(snapshotKey(snap.Sequence), snap); err != nil {
		return fmt.Errorf("state: encode snapshot: %w", err)
	}
	if err := batch.Put(snapshotLatestKey, snap.Sequence); err != nil {
		return fmt.Errorf("state: encode latest pointer: %w", err)
	}
	index := make([][]byte, 0, len(sequences))
	for _, seq := range sequences {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], seq)
		index = append(index, b[:])
	}
	if err := batch.Put(snapshotIndexKey, index); err != nil {
		return fmt.Errorf("state: encode snapshot index: %w", err)
	}
	for _, seq := range drop {
		batch.Delete(snapshotKey(seq))
	}
	if err := s.kv.Commit(batch); err != nil {
		return fmt.Errorf("state: write snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recently saved snapshot.
func (s *SnapshotStore) Latest() (*market.Snapshot, bool, error) {
	var sequence uint64
	ok, err := s.kv.KVGet(snapshotLatestKey, &sequence)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.Load(sequence)
}

// Load returns the snapshot taken at sequence.
func (s *SnapshotStore) Load(sequence uint64) (*market.Snapshot, bool, error) {
	snap := new(market.Snapshot)
	ok, err := s.kv.KVGet(snapshotKey(sequence), snap)
	if err != nil {
		return nil, false, fmt.Errorf("state: read snapshot %d: %w", sequence, err)
	}
	if !ok {
		return nil, false, nil
	}
	return snap, true, nil
}

// Sequences lists the retained snapshot sequences in ascending order.
func (s *SnapshotStore) Sequences() ([]uint64, error) {
	var raw [][]byte
	if err := s.kv.KVGetList(snapshotIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("state: corrupt snapshot index entry")
		}
		out = append(out, binary.BigEndian.Uint64(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
