package gc

import (
	"testing"

	"github.com/blang-lang/blang/pkg/value"
)

func TestCopyStringInternsIdenticalBytes(t *testing.T) {
	h := New(Config{})
	a := h.CopyString([]byte("hello"), nil)
	b := h.CopyString([]byte("hello"), nil)
	if a != b {
		t.Fatalf("expected CopyString to return the same interned object for identical bytes")
	}
	c := h.CopyString([]byte("world"), nil)
	if a == c {
		t.Errorf("expected distinct content to intern to a distinct object")
	}
}

func TestAllocateStringNeverInterns(t *testing.T) {
	h := New(Config{})
	a := h.AllocateString([]byte("hello"), nil)
	b := h.CopyString([]byte("hello"), nil)
	if a == b {
		t.Errorf("expected AllocateString's buffer to stay out of the intern pool")
	}
}

// rootSet lets a test control exactly what Collect sees as live without
// needing a *vm.VM.
type rootSet struct{ vals []value.Value }

func (r *rootSet) Func() []value.Value { return r.vals }

func TestCollectFreesUnreachedKeepsRooted(t *testing.T) {
	roots := &rootSet{}
	h := New(Config{Roots: roots.Func})

	kept := h.AllocateList(nil)
	roots.vals = []value.Value{value.FromObject(kept)}

	h.AllocateList(nil) // never rooted

	h.Collect()

	var found int
	for o := h.objects; o != nil; o = o.Next {
		found++
		if o != kept {
			t.Errorf("expected only the rooted list to survive, found unreached object %p", o)
		}
	}
	if found != 1 {
		t.Errorf("expected exactly 1 survivor, got %d", found)
	}
}

func TestCollectTracesThroughListElements(t *testing.T) {
	roots := &rootSet{}
	h := New(Config{Roots: roots.Func})

	elem := h.CopyString([]byte("payload"), nil)
	list := h.AllocateList(nil)
	list.AsList().Elems = append(list.AsList().Elems, value.FromObject(elem))
	roots.vals = []value.Value{value.FromObject(list)}

	h.Collect()

	if elem.Reached {
		t.Fatalf("Collect should clear the mark bit on survivors")
	}
	var sawElem bool
	for o := h.objects; o != nil; o = o.Next {
		if o == elem {
			sawElem = true
		}
	}
	if !sawElem {
		t.Errorf("expected a list element reachable only through the list to survive")
	}
}

func TestCleanInternPoolDropsUnreachedStrings(t *testing.T) {
	roots := &rootSet{}
	h := New(Config{Roots: roots.Func})

	h.CopyString([]byte("orphan"), nil)
	h.Collect()

	if _, ok := h.lookupInterned([]byte("orphan"), fnv1a([]byte("orphan"))); ok {
		t.Errorf("expected an unrooted interned string to be culled from the intern pool")
	}

	kept := h.CopyString([]byte("kept"), nil)
	roots.vals = []value.Value{value.FromObject(kept)}
	h.Collect()
	if _, ok := h.lookupInterned([]byte("kept"), fnv1a([]byte("kept"))); !ok {
		t.Errorf("expected a rooted interned string to survive and stay looked-up-able")
	}
}

func TestDisableSuppressesStressCollection(t *testing.T) {
	roots := &rootSet{}
	h := New(Config{Stress: true, Roots: roots.Func})

	h.Disable()
	before := h.Stats().Collections
	h.AllocateList(nil)
	if got := h.Stats().Collections; got != before {
		t.Errorf("expected Disable to suppress a Stress-mode collection, got %d new collections", got-before)
	}

	h.Enable()
	h.AllocateList(nil)
	if got := h.Stats().Collections; got == before {
		t.Errorf("expected Enable to let Stress mode collect again")
	}
}

func TestPatchClassFixesUpNilClassedObjects(t *testing.T) {
	h := New(Config{})
	s := h.CopyString([]byte("bootstrapped"), nil)
	if s.Class != nil {
		t.Fatalf("precondition: expected a nil class before PatchClass")
	}
	stringClass := h.AllocateClass(h.CopyString([]byte("String"), nil), nil, nil)
	h.PatchClass(value.ObjString, stringClass)
	if s.Class != stringClass {
		t.Errorf("expected PatchClass to back-fill the String object's class")
	}
}
