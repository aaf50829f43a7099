package chatbuffer

import "testing"

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	b := New()
	var last uint64
	for i := 0; i < 10; i++ {
		m := b.Append(Message{Kind: KindSystem, Content: "x"})
		if m.ID != last+1 {
			t.Fatalf("id %d, want %d", m.ID, last+1)
		}
		last = m.ID
	}
}

func TestSnapshotReturnsAllWhenSinceIDZero(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Append(Message{Kind: KindSystem})
	}
	snap := b.Snapshot(0)
	if len(snap.Messages) != 5 {
		t.Fatalf("len(Messages) = %d, want 5", len(snap.Messages))
	}
	if snap.TailID != 5 || snap.HeadID != 1 {
		t.Fatalf("head=%d tail=%d, want head=1 tail=5", snap.HeadID, snap.TailID)
	}
}

func TestSnapshotSinceIDFiltersOlder(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Append(Message{Kind: KindSystem})
	}
	snap := b.Snapshot(3)
	if len(snap.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(snap.Messages))
	}
	if snap.Messages[0].ID != 4 {
		t.Fatalf("first id = %d, want 4", snap.Messages[0].ID)
	}
}

// TestBufferRotation exercises scenario 6 from spec.md §8: 105 appends,
// snapshot(0) returns the last 100, head_id=6, tail_id=105.
func TestBufferRotation(t *testing.T) {
	b := New()
	for i := 0; i < 105; i++ {
		b.Append(Message{Kind: KindSystem})
	}
	snap := b.Snapshot(0)
	if len(snap.Messages) != Capacity {
		t.Fatalf("len(Messages) = %d, want %d", len(snap.Messages), Capacity)
	}
	if snap.HeadID != 6 {
		t.Fatalf("HeadID = %d, want 6", snap.HeadID)
	}
	if snap.TailID != 105 {
		t.Fatalf("TailID = %d, want 105", snap.TailID)
	}
	if snap.TotalAppended != 105 {
		t.Fatalf("TotalAppended = %d, want 105", snap.TotalAppended)
	}
}

func TestSnapshotDetectsRotationViaSinceIDBelowHead(t *testing.T) {
	b := New()
	for i := 0; i < 105; i++ {
		b.Append(Message{Kind: KindSystem})
	}
	// A client that last saw id=2 (now evicted) gets the full live window.
	snap := b.Snapshot(2)
	if len(snap.Messages) != Capacity {
		t.Fatalf("len(Messages) = %d, want %d (rotation should return full window)", len(snap.Messages), Capacity)
	}
}

func TestAppendStampsTimestampWhenZero(t *testing.T) {
	b := New()
	m := b.Append(Message{Kind: KindSystem})
	if m.Timestamp.IsZero() {
		t.Fatal("expected non-zero timestamp")
	}
}
