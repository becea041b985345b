package blobstore

import (
	"errors"
	"strings"
	"testing"
)

func TestSessionStateTracksSizeAndDigest(t *testing.T) {
	state := NewSessionState("65a1b2c3d4e5f60718293a4b", WriteOptions{Name: " clip.raw ", Metadata: map[string]string{"device": "esp32"}}, 4)

	for i, payload := range []string{"abcd", "efgh", "ij"} {
		index, err := state.Admit([]byte(payload))
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if index != i {
			t.Fatalf("expected index %d, got %d", i, index)
		}
		state.Commit([]byte(payload))
	}

	blob, err := state.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if blob.Size != 10 || blob.ChunkSize != 4 || blob.Name != "clip.raw" {
		t.Fatalf("unexpected blob: %#v", blob)
	}
	if blob.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set by first chunk")
	}

	h := NewDigest()
	_, _ = h.Write([]byte("abcdefghij"))
	if want := FormatDigest(h.Sum(nil)); blob.Digest != want {
		t.Fatalf("expected digest %q, got %q", want, blob.Digest)
	}
	if !strings.HasPrefix(blob.Digest, DigestPrefix) {
		t.Fatalf("digest missing prefix: %q", blob.Digest)
	}
}

func TestSessionStateRules(t *testing.T) {
	tests := []struct {
		name    string
		prior   []string
		payload string
		wantErr error
	}{
		{name: "empty chunk", payload: "", wantErr: ErrChunkOrder},
		{name: "oversized chunk", payload: "abcde", wantErr: ErrChunkTooLarge},
		{name: "after short chunk", prior: []string{"ab"}, payload: "cd", wantErr: ErrChunkOrder},
		{name: "full chunks continue", prior: []string{"abcd", "efgh"}, payload: "i"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewSessionState("65a1b2c3d4e5f60718293a4b", WriteOptions{}, 4)
			for _, p := range tt.prior {
				if _, err := state.Admit([]byte(p)); err != nil {
					t.Fatalf("admit prior %q: %v", p, err)
				}
				state.Commit([]byte(p))
			}
			_, err := state.Admit([]byte(tt.payload))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSessionStateClosed(t *testing.T) {
	state := NewSessionState("65a1b2c3d4e5f60718293a4b", WriteOptions{}, 4)
	blob, err := state.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if blob.Size != 0 || blob.CreatedAt.IsZero() {
		t.Fatalf("unexpected empty blob: %#v", blob)
	}
	if state.Closed() {
		t.Fatal("snapshot must not close the session")
	}

	state.Close()
	if _, err := state.Admit([]byte("a")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := state.Snapshot(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionStateClonesMetadata(t *testing.T) {
	meta := map[string]string{"k": "v"}
	state := NewSessionState("65a1b2c3d4e5f60718293a4b", WriteOptions{Metadata: meta}, 4)
	meta["k"] = "changed"

	blob, err := state.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if blob.Metadata["k"] != "v" {
		t.Fatalf("expected cloned metadata, got %#v", blob.Metadata)
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		db, collection string
		valid          bool
	}{
		{db: "Anonymeye", collection: "audio_files", valid: true},
		{db: " Anonymeye ", collection: " audio.v2 ", valid: true},
		{db: "my-db_1", collection: "_private", valid: true},
		{db: "", collection: "audio_files"},
		{db: "a/b", collection: "audio_files"},
		{db: "a.b", collection: "audio_files"},
		{db: strings.Repeat("d", maxDatabaseNameLength+1), collection: "audio_files"},
		{db: "Anonymeye", collection: ""},
		{db: "Anonymeye", collection: "1starts_with_digit"},
		{db: "Anonymeye", collection: "has space"},
		{db: "Anonymeye", collection: "system.indexes"},
	}

	for _, tt := range tests {
		db, collection, err := ValidateNamespace(tt.db, tt.collection)
		if tt.valid {
			if err != nil {
				t.Fatalf("ValidateNamespace(%q, %q): %v", tt.db, tt.collection, err)
			}
			if db != strings.TrimSpace(tt.db) || collection != strings.TrimSpace(tt.collection) {
				t.Fatalf("expected trimmed names, got %q %q", db, collection)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidNamespace) {
			t.Fatalf("ValidateNamespace(%q, %q): expected ErrInvalidNamespace, got %v", tt.db, tt.collection, err)
		}
	}
}

func TestConnectivityErrorUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := error(&ConnectivityError{Backend: "mongo", Err: cause})
	if !IsConnectivityError(err) {
		t.Fatal("expected connectivity error")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
	if IsConnectivityError(ErrNotFound) {
		t.Fatal("not found is not a connectivity error")
	}
}
