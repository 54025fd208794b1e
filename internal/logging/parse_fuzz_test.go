package logging

import "testing"

func FuzzParseLevel(f *testing.F) {
	for _, seed := range []string{"info", "warn", "warning", "error", "debug", "", "???", "INFO"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		level, ok := ParseLevel(raw)
		if ok && !level.known() {
			t.Fatalf("parsed level %q is not canonical", level)
		}
	})
}
