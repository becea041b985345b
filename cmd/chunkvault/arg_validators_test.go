package main

import "testing"

func TestParseMetadata(t *testing.T) {
	got, err := parseMetadata([]string{"device=esp32", "note=a=b", "empty="})
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	want := map[string]string{"device": "esp32", "note": "a=b", "empty": ""}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected %q, got %q", k, v, got[k])
		}
	}

	for _, bad := range []string{"novalue", "=x", " =x"} {
		if _, err := parseMetadata([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}

	if got, err := parseMetadata(nil); err != nil || got != nil {
		t.Fatalf("expected nil map, got %v (%v)", got, err)
	}
}

func TestRequireFileID(t *testing.T) {
	if err := requireFileID(nil, []string{"65a1b2c3d4e5f60718293a4b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := requireFileID(nil, nil); err == nil || err.Error() != "file id is required" {
		t.Fatalf("expected file id error, got %v", err)
	}
	if err := requireAtMostArgs(1, "too many")(nil, []string{"a", "b"}); err == nil {
		t.Fatal("expected too many args error")
	}
}
