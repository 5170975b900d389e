package vm

import "github.com/blang-lang/blang/pkg/value"

// captureUpvalue returns the open Upvalue for stackSlot, reusing an
// existing one if some other closure already captured that exact slot
// (§3.3.6): the VM keeps a single open-upvalue list for all frames so two
// closures over the same local share one Upvalue object, the
// invariant that lets one closure's mutation be visible to another.
func (vm *VM) captureUpvalue(stackSlot int) *value.Object {
	var prev *value.Object
	cur := vm.openUpvalues
	for cur != nil && cur.AsUpvalue().StackSlot > stackSlot {
		prev = cur
		cur = cur.AsUpvalue().Next
	}
	if cur != nil && cur.AsUpvalue().StackSlot == stackSlot {
		return cur
	}
	fresh := vm.heap.AllocateUpvalue(stackSlot, vm.classes.Function)
	fresh.AsUpvalue().Next = cur
	if prev == nil {
		vm.openUpvalues = fresh
	} else {
		prev.AsUpvalue().Next = fresh
	}
	return fresh
}

// closeUpvalues closes every open upvalue at or above fromSlot,
// copying its stack value into the Upvalue object itself so it
// survives the frame's locals being discarded (§3.3.6 "a single
// prefix sweep closing on frame return" since the list is kept sorted
// by descending stack address).
func (vm *VM) closeUpvalues(fromSlot int) {
	for vm.openUpvalues != nil {
		u := vm.openUpvalues.AsUpvalue()
		if u.StackSlot < fromSlot {
			break
		}
		u.Value = vm.stack[u.StackSlot]
		u.Closed = true
		vm.openUpvalues = u.Next
		u.Next = nil
	}
}
