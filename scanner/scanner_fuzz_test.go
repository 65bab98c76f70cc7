package scanner

import (
	"testing"

	"github.com/wudi/preflight/recovery"
)

func FuzzScanner(f *testing.F) {
	f.Add([]byte("q 1 0 0 1 0 0 cm /Im0 Do Q"))
	f.Add([]byte("[ (a) -120 (b) ] TJ"))
	f.Add([]byte("BI /W 1 /H 1 ID \x00 EI"))
	f.Add([]byte("(Hello World)"))
	f.Add([]byte("<AABBCC>"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(data, Config{
			MaxStringLength: 1024,
			MaxArrayDepth:   10,
			MaxDictDepth:    10,
			MaxInlineImage:  1024,
			Recovery:        recovery.NewLenientStrategy(),
		})

		for i := 0; i <= 2*len(data)+16; i++ {
			if _, err := s.Next(); err != nil {
				return
			}
		}
		t.Fatalf("scanner did not terminate on %q", data)
	})
}
