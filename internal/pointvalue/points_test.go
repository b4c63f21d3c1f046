package pointvalue

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterPoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RegisterPoint(ctx, Point{ID: 2, Name: "Valve", DataType: DataTypeMultistate}); err != nil {
		t.Fatalf("RegisterPoint() error = %v", err)
	}
	if err := s.RegisterPoint(ctx, Point{ID: 1, XID: "DP_flow", Name: "Flow", DataType: DataTypeNumeric}); err != nil {
		t.Fatalf("RegisterPoint() error = %v", err)
	}

	p, err := s.GetPoint(ctx, 2)
	if err != nil {
		t.Fatalf("GetPoint() error = %v", err)
	}
	want := Point{ID: 2, XID: "DP_2", Name: "Valve", DataType: DataTypeMultistate}
	if p == nil || *p != want {
		t.Errorf("GetPoint(2) = %+v, want %+v", p, want)
	}

	// Registering again updates in place.
	if err := s.RegisterPoint(ctx, Point{ID: 2, XID: "DP_valve", Name: "Mixing valve", DataType: DataTypeMultistate}); err != nil {
		t.Fatalf("RegisterPoint() update error = %v", err)
	}

	points, err := s.Points(ctx)
	if err != nil {
		t.Fatalf("Points() error = %v", err)
	}
	if len(points) != 2 || points[0].ID != 1 || points[1].Name != "Mixing valve" || points[1].XID != "DP_valve" {
		t.Errorf("Points() = %+v", points)
	}
}

func TestRegisterPoint_InvalidID(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []int{0, -3} {
		if err := s.RegisterPoint(context.Background(), Point{ID: id}); !errors.Is(err, ErrInvalidPoint) {
			t.Errorf("RegisterPoint(id %d) error = %v, want ErrInvalidPoint", id, err)
		}
	}
}

func TestUnregisterPoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RegisterPoint(ctx, Point{ID: 5, DataType: DataTypeNumeric}); err != nil {
		t.Fatalf("RegisterPoint() error = %v", err)
	}
	seed(t, s, 5, 100)

	if err := s.UnregisterPoint(ctx, 5); err != nil {
		t.Fatalf("UnregisterPoint() error = %v", err)
	}
	p, err := s.GetPoint(ctx, 5)
	if err != nil || p != nil {
		t.Errorf("GetPoint(5) = %+v, %v; want nil, nil", p, err)
	}

	// Values stay until the orphan purge.
	pv, err := s.Latest(ctx, 5)
	if err != nil || pv == nil {
		t.Fatalf("Latest(5) = %v, %v; want a value", pv, err)
	}
	n, err := s.DeleteOrphaned(ctx)
	if err != nil {
		t.Fatalf("DeleteOrphaned() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteOrphaned() = %d, want 1", n)
	}
}

func TestGetPoint_Missing(t *testing.T) {
	s := newTestStore(t)

	p, err := s.GetPoint(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetPoint() error = %v", err)
	}
	if p != nil {
		t.Errorf("GetPoint(42) = %+v, want nil", p)
	}
}
