// Package gc implements Blang's precise mark-and-sweep collector
// (§4.2). It owns the single allocation entry point every heap object
// passes through, the live-object list the sweep phase walks, and the
// weak string intern pool.
//
// The teacher has no collector of its own (Go's runtime does that
// job for smog's plain `interface{}` values); this package is grounded
// instead on the mark/sweep vocabulary of Go's own runtime allocator
// (see DESIGN.md, Component B) generalized into a from-scratch,
// hosted-VM collector.
package gc

import (
	"hash/fnv"

	"github.com/blang-lang/blang/pkg/hashtable"
	"github.com/blang-lang/blang/pkg/value"
)

// RootsFunc returns every current GC root (§4.2's ten-item root set)
// as a flat slice of Values; the caller (pkg/vm) is responsible for
// wrapping heap pointers with value.FromObject.
type RootsFunc func() []value.Value

// Stats reports the number of collections so far and the last
// collection's freed and live object counts. It is kept whether or not
// EnableStats was called; no symbol-cache hit/miss counters are kept.
type Stats struct {
	Collections int
	LastFreed   int
	LastLive    int
}

// Config configures a Heap. HeapGrowRate defaults to 2 when zero,
// matching the spec's stated default.
type Config struct {
	InitialGCThreshold int64
	HeapGrowRate       float64
	Stress             bool
	Roots              RootsFunc
	OnCollect          func(Stats)
}

// Heap owns every allocation made during a single VM's lifetime: the
// live-object list, the running allocation counter, and the weak
// string intern pool.
type Heap struct {
	cfg Config

	objects   *value.Object
	allocated int64
	nextGC    int64
	disabled  bool
	nextID    uint32

	intern *hashtable.Table // StringKey(bytes,hash) -> *value.Object (String)

	stats      Stats
	statsOn    bool
}

// New returns an empty Heap ready to allocate.
func New(cfg Config) *Heap {
	if cfg.HeapGrowRate == 0 {
		cfg.HeapGrowRate = 2
	}
	if cfg.InitialGCThreshold == 0 {
		cfg.InitialGCThreshold = 1 << 20
	}
	return &Heap{
		cfg:    cfg,
		nextGC: cfg.InitialGCThreshold,
		intern: hashtable.New(),
	}
}

// Disable and Enable bracket bootstrap/perf-sensitive sections that
// must not be interrupted by a collection (§5 "may be explicitly
// disabled during bootstrap").
func (h *Heap) Disable() { h.disabled = true }
func (h *Heap) Enable()  { h.disabled = false }

// EnableStats sets a flag that nothing else reads; Stats are kept and
// Config.OnCollect is called after every collection regardless.
func (h *Heap) EnableStats() { h.statsOn = true }

func (h *Heap) link(o *value.Object) *value.Object {
	o.Next = h.objects
	h.objects = o
	h.nextID++
	o.SetID(h.nextID)
	return o
}

// gcAlloc is the single entry point every allocation in this package
// funnels through (§4.2): it updates the running counter and, once
// the threshold is crossed (or stress mode is on), triggers a
// collection before returning.
func (h *Heap) gcAlloc(size int64) {
	h.allocated += size
	if h.disabled {
		return
	}
	if h.cfg.Stress || h.allocated > h.nextGC {
		h.Collect()
	}
}

// Collect runs one full mark-sweep cycle against the current roots.
// Safe to call directly (e.g. for an embedder-triggered GC, or tests
// asserting the "GC safety" testable property).
func (h *Heap) Collect() {
	if h.cfg.Roots == nil {
		return
	}
	roots := h.cfg.Roots()

	var gray []*value.Object
	reach := func(o *value.Object) {
		if o == nil || o.Reached {
			return
		}
		o.Reached = true
		gray = append(gray, o)
	}
	markValue := func(v value.Value) {
		if v.IsObj() {
			reach(v.AsObject())
		}
	}

	for _, v := range roots {
		markValue(v)
	}

	for len(gray) > 0 {
		o := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		reach(o.Class)
		traceObject(o, reach, markValue)
	}

	// Intern-pool weak keys must be culled before sweep clears the
	// mark bit sweep itself relies on (§4.2 "before sweep, iterate the
	// intern pool and remove entries whose key string is not reached").
	h.cleanInternPool()
	freed, live := h.sweep()

	h.nextGC = int64(float64(h.allocated) * h.cfg.HeapGrowRate)
	h.stats.Collections++
	h.stats.LastFreed = freed
	h.stats.LastLive = live
	if h.cfg.OnCollect != nil {
		h.cfg.OnCollect(h.stats)
	}
}

// traceObject visits every outgoing reference of o per the kind-by-
// kind rules in §4.2's mark phase description.
func traceObject(o *value.Object, reach func(*value.Object), markValue func(value.Value)) {
	switch o.Kind {
	case value.ObjString:
		// no outgoing references beyond the class, already reached
	case value.ObjModule:
		m := o.AsModule()
		reach(m.Name.Owner)
		for _, g := range m.Globals {
			markValue(g)
		}
	case value.ObjFunction:
		f := o.AsFunction()
		reach(f.Proto.Module)
		for _, c := range f.Code.Constants {
			markValue(c)
		}
		for _, d := range f.Proto.Defaults {
			markValue(d)
		}
	case value.ObjNative:
		n := o.AsNative()
		reach(n.Proto.Module)
		reach(n.DefiningClass)
		for _, d := range n.Proto.Defaults {
			markValue(d)
		}
	case value.ObjClosure:
		c := o.AsClosure()
		reach(c.Fn)
		reach(c.DefiningClass)
		for _, u := range c.Upvalues {
			reach(u)
		}
	case value.ObjUpvalue:
		u := o.AsUpvalue()
		if u.Closed {
			markValue(u.Value)
		}
	case value.ObjClass:
		cl := o.AsClass()
		reach(cl.Name.Owner)
		reach(cl.Super)
		cl.Methods.Each(func(k hashtable.Key, v interface{}) {
			reach(k.(value.StringKey).S.Owner)
			markValue(v.(value.Value))
		})
		cl.Fields.Each(func(k hashtable.Key, _ int32) {
			reach(k.(value.StringKey).S.Owner)
		})
	case value.ObjInstance:
		i := o.AsInstance()
		for _, fv := range i.Fields {
			markValue(fv)
		}
	case value.ObjList:
		l := o.AsList()
		for _, e := range l.Elems {
			markValue(e)
		}
	case value.ObjTuple:
		t := o.AsTuple()
		for _, e := range t.Elems {
			markValue(e)
		}
	case value.ObjTable:
		t := o.AsTable()
		t.Entries.Each(func(k hashtable.Key, v interface{}) {
			markValue(k.(value.Value))
			markValue(v.(value.Value))
		})
	case value.ObjBoundMethod:
		b := o.AsBoundMethod()
		markValue(b.Receiver)
		reach(b.Method)
	case value.ObjStackTrace:
		// frames hold plain strings, nothing to trace
	case value.ObjGenerator:
		g := o.AsGenerator()
		reach(g.Closure)
		markValue(g.LastYielded)
		for _, v := range g.StackBuf {
			markValue(v)
		}
	case value.ObjUserdata:
		// opaque bytes, nothing to trace
	}
}

// sweep walks the live-object list, frees anything not reached
// (running Userdata finalizers first), and clears the mark bit on
// survivors.
func (h *Heap) sweep() (freed, live int) {
	var prev *value.Object
	cur := h.objects
	for cur != nil {
		next := cur.Next
		if !cur.Reached {
			if cur.Kind == value.ObjUserdata {
				u := cur.AsUserdata()
				if u.Finalizer != nil {
					u.Finalizer(u)
				}
			}
			if prev == nil {
				h.objects = next
			} else {
				prev.Next = next
			}
			freed++
		} else {
			cur.Reached = false
			prev = cur
			live++
		}
		cur = next
	}
	return freed, live
}

// cleanInternPool removes entries whose key string was not reached
// during the mark phase just completed (§4.2 "Intern-pool weak
// keys", §3.3.2). Must run before sweep clears the mark bit.
func (h *Heap) cleanInternPool() {
	h.intern.DeleteUnreached(func(k hashtable.Key) bool {
		return k.(value.StringKey).S.Owner.Reached
	})
}

// Allocated, NextGC and Stats expose the running counters the "GC discipline
// invariants" section of §4.2 asks embedders to respect when rooting
// multi-allocation sites manually.
func (h *Heap) Allocated() int64 { return h.allocated }
func (h *Heap) NextGC() int64    { return h.nextGC }
func (h *Heap) Stats() Stats     { return h.stats }

func fnv1a(b []byte) uint32 {
	hh := fnv.New32a()
	hh.Write(b)
	return hh.Sum32()
}
