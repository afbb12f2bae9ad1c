package kms

import "testing"

func TestBuildAtomicPayload_GroupsByObject(t *testing.T) {
	changes := []AtomicProp{
		{ObjectID: 30, PropertyID: 1, Value: 100},
		{ObjectID: 10, PropertyID: 2, Value: 200},
		{ObjectID: 30, PropertyID: 3, Value: 300},
		{ObjectID: 20, PropertyID: 4, Value: 400},
		{ObjectID: 10, PropertyID: 5, Value: 500},
	}

	p := buildAtomicPayload(changes)

	wantObjs := []uint32{10, 20, 30}
	if len(p.objs) != len(wantObjs) {
		t.Fatalf("got %d objects, want %d", len(p.objs), len(wantObjs))
	}
	for i, want := range wantObjs {
		if p.objs[i] != want {
			t.Errorf("object %d: got %d, want %d", i, p.objs[i], want)
		}
	}

	wantCounts := []uint32{2, 1, 2}
	for i, want := range wantCounts {
		if p.countProps[i] != want {
			t.Errorf("count for object %d: got %d, want %d", p.objs[i], p.countProps[i], want)
		}
	}

	// Flat property arrays must follow object grouping and keep the
	// original submission order within each object.
	wantProps := []uint32{2, 5, 4, 1, 3}
	wantValues := []uint64{200, 500, 400, 100, 300}
	for i := range wantProps {
		if p.props[i] != wantProps[i] || p.propValues[i] != wantValues[i] {
			t.Errorf("slot %d: got (%d,%d), want (%d,%d)",
				i, p.props[i], p.propValues[i], wantProps[i], wantValues[i])
		}
	}
}

func TestBuildAtomicPayload_DuplicatePropertyKeepsOrder(t *testing.T) {
	// A later set of the same property must come after the earlier one so
	// the kernel applies it last.
	changes := []AtomicProp{
		{ObjectID: 7, PropertyID: 1, Value: 10},
		{ObjectID: 7, PropertyID: 1, Value: 20},
	}

	p := buildAtomicPayload(changes)
	if len(p.props) != 2 || p.propValues[0] != 10 || p.propValues[1] != 20 {
		t.Errorf("duplicate property order not preserved: %v", p.propValues)
	}
}

func TestBuildAtomicPayload_Empty(t *testing.T) {
	p := buildAtomicPayload(nil)
	if len(p.objs) != 0 || len(p.props) != 0 {
		t.Errorf("empty change set should produce an empty payload")
	}
}
