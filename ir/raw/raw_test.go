package raw

import (
	"errors"
	"testing"
)

func TestResolveFollowsReferences(t *testing.T) {
	doc := &Document{Objects: map[ObjectRef]Object{
		{Num: 1}: Ref(2, 0),
		{Num: 2}: Name("DeviceCMYK"),
	}}

	got, err := doc.Resolve(Ref(1, 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n, ok := got.(NameObj); !ok || n.Val != "DeviceCMYK" {
		t.Fatalf("unexpected object %#v", got)
	}

	if _, err := doc.Resolve(Ref(9, 0)); !errors.Is(err, ErrDangling) {
		t.Fatalf("expected ErrDangling, got %v", err)
	}
}

func TestResolveDetectsLoops(t *testing.T) {
	doc := &Document{Objects: map[ObjectRef]Object{
		{Num: 1}: Ref(2, 0),
		{Num: 2}: Ref(1, 0),
	}}
	if _, err := doc.Resolve(Ref(1, 0)); !errors.Is(err, ErrReferenceChain) {
		t.Fatalf("expected ErrReferenceChain, got %v", err)
	}
}

func TestIdentityOf(t *testing.T) {
	a := NewArray(Name("Indexed"))
	b := NewArray(Name("Indexed"))
	if IdentityOf(a) == IdentityOf(b) {
		t.Fatalf("distinct arrays share identity")
	}
	if IdentityOf(Ref(3, 0)) != IdentityOf(Ref(3, 0)) {
		t.Fatalf("equal references must share identity")
	}
	if IdentityOf(Name("DeviceGray")) != IdentityOf(Name("DeviceGray")) {
		t.Fatalf("equal names must share identity")
	}
	if IdentityOf(Int(1)) != nil {
		t.Fatalf("numbers have no identity")
	}
}

func TestDictGetSkipsNull(t *testing.T) {
	d := Dict("A", NullObj{}, "B", Int(2))
	if d.Has("A") {
		t.Fatalf("null entry reported as present")
	}
	if v, ok := IntOf(Direct{}, mustGet(t, d, "B")); !ok || v != 2 {
		t.Fatalf("unexpected B: %v %v", v, ok)
	}
}

func mustGet(t *testing.T, d *DictObj, key string) Object {
	t.Helper()
	o, ok := d.Get(key)
	if !ok {
		t.Fatalf("missing %s", key)
	}
	return o
}
