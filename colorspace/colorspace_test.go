package colorspace

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/preflight/ir/raw"
)

func TestResolve(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		{Num: 1}: raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceCMYK"), raw.Int(1), raw.Str("\x00\x00\x00\x00\xff\xff\xff\xff")),
		{Num: 2}: raw.NewArray(raw.Name("ICCBased"), raw.NewStream(raw.Dict("N", raw.Int(4)), nil)),
		{Num: 3}: raw.NewArray(raw.Name("Indexed"), raw.Ref(3, 0), raw.Int(1), raw.Str("")),
	}}
	tests := []struct {
		name    string
		in      raw.Object
		want    string
		wantErr bool
	}{
		{"name", raw.Name("DeviceGray"), DeviceGray, false},
		{"abbreviation", raw.Name("CMYK"), DeviceCMYK, false},
		{"separation array", raw.NewArray(raw.Name("Separation"), raw.Name("Spot"), raw.Name("DeviceCMYK"), raw.NullObj{}), Separation, false},
		{"indexed classified by base", raw.Ref(1, 0), DeviceCMYK, false},
		{"indexed over reference", raw.NewArray(raw.Name("Indexed"), raw.Ref(2, 0), raw.Int(1), raw.Str("")), ICCBased, false},
		{"indexed cycle", raw.Ref(3, 0), "", true},
		{"empty array", raw.NewArray(), "", true},
		{"non-name head", raw.NewArray(raw.Int(1)), "", true},
		{"number", raw.Int(3), "", true},
		{"dict", raw.Dict(), "", true},
		{"dangling", raw.Ref(99, 0), "", true},
		{"nil", nil, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewResolver(doc).Resolve(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrUnresolvable) {
					t.Fatalf("expected ErrUnresolvable, got %q, %v", got, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("Resolve = %q, %v; want %q", got, err, tc.want)
			}
		})
	}
}

type countingResolver struct {
	mu    sync.Mutex
	calls int
	doc   *raw.Document
}

func (c *countingResolver) Resolve(obj raw.Object) (raw.Object, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.doc.Resolve(obj)
}

func TestResolveCachesByIdentity(t *testing.T) {
	cmyk := raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceCMYK"), raw.Int(1), raw.Str(""))
	rgb := raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceRGB"), raw.Int(1), raw.Str(""))
	counter := &countingResolver{doc: &raw.Document{}}
	r := NewResolver(counter)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(cmyk)
		}()
	}
	wg.Wait()
	before := counter.calls
	if got, _ := r.Resolve(cmyk); got != DeviceCMYK {
		t.Fatalf("expected DeviceCMYK, got %s", got)
	}
	if counter.calls != before {
		t.Fatalf("cached lookup touched the document")
	}
	// a different object must not hit the first object's entry
	if got, _ := r.Resolve(rgb); got != DeviceRGB {
		t.Fatalf("expected DeviceRGB for distinct object, got %s", got)
	}
}

func TestComponents(t *testing.T) {
	iccRef := raw.NewArray(raw.Name("ICCBased"), raw.NewStream(raw.Dict("Alternate", raw.Name("DeviceRGB")), nil))
	tests := []struct {
		in   raw.Object
		want int
	}{
		{raw.Name("DeviceGray"), 1},
		{raw.Name("DeviceRGB"), 3},
		{raw.Name("DeviceCMYK"), 4},
		{raw.NewArray(raw.Name("Lab"), raw.Dict()), 3},
		{raw.NewArray(raw.Name("DeviceN"), raw.NewArray(raw.Name("A"), raw.Name("B")), raw.Name("DeviceCMYK"), raw.NullObj{}), 2},
		{raw.NewArray(raw.Name("ICCBased"), raw.NewStream(raw.Dict("N", raw.Int(4)), nil)), 4},
		{iccRef, 3},
		{raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceRGB"), raw.Int(255), raw.Str("")), 1},
	}
	for _, tc := range tests {
		got, err := Components(raw.Direct{}, tc.in)
		if err != nil || got != tc.want {
			t.Errorf("Components(%v) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
	}
	if _, err := Components(raw.Direct{}, raw.Name("Bogus")); !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("unknown family should be unresolvable, got %v", err)
	}
}

func TestDefaultDecode(t *testing.T) {
	indexed := raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceRGB"), raw.Int(3), raw.Str(""))
	got, err := DefaultDecode(raw.Direct{}, indexed, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 3}, got); diff != "" {
		t.Fatalf("indexed decode mismatch (-want +got):\n%s", diff)
	}

	lab := raw.NewArray(raw.Name("Lab"), raw.Dict("Range", raw.Nums(-128, 127, -50, 50)))
	got, _ = DefaultDecode(raw.Direct{}, lab, 8)
	if diff := cmp.Diff([]float64{0, 100, -128, 127, -50, 50}, got); diff != "" {
		t.Fatalf("lab decode mismatch (-want +got):\n%s", diff)
	}

	got, _ = DefaultDecode(raw.Direct{}, raw.Name("DeviceCMYK"), 8)
	if diff := cmp.Diff([]float64{0, 1, 0, 1, 0, 1, 0, 1}, got); diff != "" {
		t.Fatalf("cmyk decode mismatch (-want +got):\n%s", diff)
	}
}

func TestInitialColor(t *testing.T) {
	sep := raw.NewArray(raw.Name("Separation"), raw.Name("Spot"), raw.Name("DeviceCMYK"), raw.NullObj{})
	tests := []struct {
		in   raw.Object
		want []float64
	}{
		{raw.Name("DeviceGray"), []float64{0}},
		{raw.Name("DeviceRGB"), []float64{0, 0, 0}},
		{raw.Name("DeviceCMYK"), []float64{0, 0, 0, 1}},
		{sep, []float64{1}},
		{raw.Name("Pattern"), nil},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, InitialColor(raw.Direct{}, tc.in)); diff != "" {
			t.Errorf("InitialColor(%v) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestFamilyKeepsIndexed(t *testing.T) {
	indexed := raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceCMYK"), raw.Int(1), raw.Str(""))
	if f, err := Family(raw.Direct{}, indexed); err != nil || f != Indexed {
		t.Fatalf("Family = %q, %v", f, err)
	}
	if !IsIndexed(raw.Direct{}, raw.Name("I")) {
		t.Fatalf("abbreviated indexed not recognized")
	}
}
