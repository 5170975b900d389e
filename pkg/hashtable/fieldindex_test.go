package hashtable

import "testing"

func TestFieldIndexDeclareAssignsAscendingSlots(t *testing.T) {
	f := NewFieldIndex()
	slot0, isNew0 := f.Declare(intKey(10))
	slot1, isNew1 := f.Declare(intKey(20))
	if !isNew0 || !isNew1 {
		t.Fatalf("expected both declares to be new")
	}
	if slot0 != 0 || slot1 != 1 {
		t.Errorf("expected slots 0, 1, got %d, %d", slot0, slot1)
	}
	if f.Count() != 2 {
		t.Errorf("expected Count 2, got %d", f.Count())
	}
}

func TestFieldIndexDeclareIsIdempotent(t *testing.T) {
	f := NewFieldIndex()
	slot, _ := f.Declare(intKey(1))
	again, isNew := f.Declare(intKey(1))
	if isNew {
		t.Errorf("expected re-declare to report !isNew")
	}
	if again != slot {
		t.Errorf("expected the same slot on re-declare, got %d vs %d", again, slot)
	}
}

func TestFieldIndexSlotsSurviveDeletion(t *testing.T) {
	f := NewFieldIndex()
	f.Declare(intKey(1))
	f.Declare(intKey(2))
	f.Del(intKey(1))
	slot, isNew := f.Declare(intKey(3))
	if !isNew {
		t.Fatalf("expected key 3 to be newly declared")
	}
	if slot != 2 {
		t.Errorf("expected append-only slot 2 after deleting slot 0, got %d (count never decreases)", slot)
	}
}

func TestFieldIndexMergeCopiesSlotsVerbatim(t *testing.T) {
	parent := NewFieldIndex()
	parent.Declare(intKey(1))
	parent.Declare(intKey(2))

	child := NewFieldIndex()
	child.Merge(parent)

	for _, k := range []Key{intKey(1), intKey(2)} {
		wantSlot, _ := parent.Get(k)
		gotSlot, ok := child.Get(k)
		if !ok || gotSlot != wantSlot {
			t.Errorf("key %v: expected slot %d copied verbatim, got %d, %v", k, wantSlot, gotSlot, ok)
		}
	}
	if child.Count() != parent.Count() {
		t.Errorf("expected child Count to match parent after merge: %d vs %d", child.Count(), parent.Count())
	}
}
