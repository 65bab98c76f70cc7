package raw

import "sort"

// NameObj is a PDF name without its leading slash.
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }
func (n NameObj) Value() string    { return n.Val }

// NumberObj is a PDF integer or real.
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}

type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }

type NullObj struct{}

func (NullObj) Type() string     { return "null" }
func (NullObj) IsIndirect() bool { return false }

// StringObj holds the decoded bytes of a literal or hex string.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }

type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (a *ArrayObj) Len() int         { return len(a.Items) }

// Get returns the element at i.
func (a *ArrayObj) Get(i int) (Object, bool) {
	if a == nil || i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}

type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string     { return "dict" }
func (d *DictObj) IsIndirect() bool { return false }
func (d *DictObj) Len() int         { return len(d.KV) }

// Get returns the value stored under key (without the slash).
func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key]
	if _, null := o.(NullObj); null {
		return nil, false
	}
	return o, ok && o != nil
}

// Has reports whether key is present with a non-null value.
func (d *DictObj) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}

// Keys returns the dictionary keys in sorted order.
func (d *DictObj) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StreamObj holds a stream dictionary and its still-encoded data.
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string     { return "stream" }
func (s *StreamObj) IsIndirect() bool { return false }

type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }

func Name(v string) NameObj              { return NameObj{Val: v} }
func Int(i int64) NumberObj              { return NumberObj{I: i, IsInt: true} }
func Real(f float64) NumberObj           { return NumberObj{F: f} }
func Bool(v bool) BoolObj                { return BoolObj{V: v} }
func Str(s string) StringObj             { return StringObj{Bytes: []byte(s)} }
func NewArray(items ...Object) *ArrayObj { return &ArrayObj{Items: items} }
func Ref(num, gen int) RefObj            { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// Dict builds a dictionary from alternating key/value arguments.
func Dict(kv ...any) *DictObj {
	d := &DictObj{KV: make(map[string]Object, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		d.KV[kv[i].(string)] = kv[i+1].(Object)
	}
	return d
}

func NewStream(dict *DictObj, data []byte) *StreamObj {
	if dict == nil {
		dict = Dict()
	}
	return &StreamObj{Dict: dict, Data: data}
}

// Nums builds an array of reals.
func Nums(vals ...float64) *ArrayObj {
	items := make([]Object, len(vals))
	for i, v := range vals {
		items[i] = Real(v)
	}
	return &ArrayObj{Items: items}
}
