package engine

import "testing"

func TestInsertSortedMaintainsOrder(t *testing.T) {
	var obs []observation
	var idx int
	var ok bool

	obs, idx, ok = insertSorted(obs, observation{timestamp: 100, mile: 1})
	if !ok || idx != 0 {
		t.Fatalf("first insert: idx=%d ok=%v", idx, ok)
	}

	obs, idx, ok = insertSorted(obs, observation{timestamp: 50, mile: 0})
	if !ok || idx != 0 {
		t.Fatalf("earlier insert should land at 0: idx=%d ok=%v", idx, ok)
	}

	obs, idx, ok = insertSorted(obs, observation{timestamp: 200, mile: 2})
	if !ok || idx != 2 {
		t.Fatalf("later insert should land at end: idx=%d ok=%v", idx, ok)
	}

	want := []uint32{50, 100, 200}
	for i, o := range obs {
		if o.timestamp != want[i] {
			t.Fatalf("obs[%d].timestamp = %d, want %d", i, o.timestamp, want[i])
		}
	}
}

func TestInsertSortedDuplicateTimestampKeepsFirst(t *testing.T) {
	obs, _, ok := insertSorted(nil, observation{timestamp: 100, mile: 1})
	if !ok {
		t.Fatal("first insert should succeed")
	}

	obs2, idx, ok := insertSorted(obs, observation{timestamp: 100, mile: 99})
	if ok {
		t.Fatal("duplicate timestamp should not be inserted")
	}
	if obs2[idx].mile != 1 {
		t.Fatalf("first-inserted observation should win, got mile=%d", obs2[idx].mile)
	}
}
