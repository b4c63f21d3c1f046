package pointvalue

import "testing"

func TestUnsavedBuffer_DropsOldest(t *testing.T) {
	u := newUnsavedBuffer(3)

	for i := 1; i <= 3; i++ {
		if u.add(PointValue{PointID: 1, Time: int64(i)}) {
			t.Fatalf("add(%d) dropped a value below the limit", i)
		}
	}
	if !u.add(PointValue{PointID: 1, Time: 4}) {
		t.Error("add() beyond the limit should report a drop")
	}

	if got := u.size(); got != 3 {
		t.Errorf("size() = %d, want 3", got)
	}
	if got := u.droppedCount(); got != 1 {
		t.Errorf("droppedCount() = %d, want 1", got)
	}

	values := u.takeAll()
	if len(values) != 3 || values[0].Time != 2 || values[2].Time != 4 {
		t.Errorf("takeAll() times = %v, want [2 3 4]", times(values))
	}
	if got := u.size(); got != 0 {
		t.Errorf("size() after takeAll = %d, want 0", got)
	}
}

func TestUnsavedBuffer_RequeueKeepsOrder(t *testing.T) {
	u := newUnsavedBuffer(10)
	u.add(PointValue{PointID: 1, Time: 1})
	u.add(PointValue{PointID: 1, Time: 2})

	taken := u.takeAll()
	u.add(PointValue{PointID: 1, Time: 3})
	u.requeue(taken)

	got := times(u.takeAll())
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("times = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("times = %v, want %v", got, want)
		}
	}
}

func TestUnsavedBuffer_DefaultLimit(t *testing.T) {
	if u := newUnsavedBuffer(0); u.max != defaultMaxUnsaved {
		t.Errorf("max = %d, want %d", u.max, defaultMaxUnsaved)
	}
}

func times(values []PointValue) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = v.Time
	}
	return out
}
