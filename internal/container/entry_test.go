package container

import (
	"bytes"
	"testing"
)

// buildSampleTree returns a small tree:
//
//	/
//	├── docs/
//	│   ├── readme.txt (12 bytes)
//	│   └── sub/
//	└── data.bin (1024 bytes, hashed)
func buildSampleTree() *Entry {
	root := NewRoot(1000)

	docs := &Entry{Kind: KindDirectory, Name: "docs", Timestamp: 1001}
	root.AddChild(docs)

	readme := &Entry{
		Kind:       KindFile,
		Name:       "readme.txt",
		Size:       12,
		Timestamp:  1002,
		DataOffset: 2048,
	}
	docs.AddChild(readme)

	sub := &Entry{Kind: KindDirectory, Name: "sub", Timestamp: 1003}
	docs.AddChild(sub)

	data := &Entry{
		Kind:          KindFile,
		Name:          "data.bin",
		Size:          1024,
		Timestamp:     1004,
		DataOffset:    4096,
		IntegrityHash: bytes.Repeat([]byte{0xCD}, 32),
	}
	root.AddChild(data)

	return root
}

func treesEqual(a, b *Entry) bool {
	if a.Kind != b.Kind || a.Name != b.Name || a.Size != b.Size ||
		a.Timestamp != b.Timestamp || a.DataOffset != b.DataOffset ||
		!bytes.Equal(a.IntegrityHash, b.IntegrityHash) ||
		len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !treesEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func TestEntryRoundTrip(t *testing.T) {
	root := buildSampleTree()

	got, err := UnmarshalEntry(root.Marshal(nil))
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !treesEqual(root, got) {
		t.Error("round trip mismatch")
	}
}

func TestEntryRoundTripReconstructsParents(t *testing.T) {
	root := buildSampleTree()

	got, err := UnmarshalEntry(root.Marshal(nil))
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got.Parent != nil {
		t.Error("root must have no parent")
	}
	var check func(e *Entry)
	check = func(e *Entry) {
		for _, c := range e.Children {
			if c.Parent != e {
				t.Errorf("child %q has wrong parent", c.Name)
			}
			check(c)
		}
	}
	check(got)
}

func TestEntryRoundTripEmptyRoot(t *testing.T) {
	root := NewRoot(42)

	got, err := UnmarshalEntry(root.Marshal(nil))
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !got.IsDirectory() || got.Name != "" || len(got.Children) != 0 {
		t.Errorf("unexpected root: %+v", got)
	}
}

func TestUnmarshalEntryTruncated(t *testing.T) {
	full := buildSampleTree().Marshal(nil)

	for cut := 0; cut < len(full); cut += 7 {
		if _, err := UnmarshalEntry(full[:cut]); err == nil {
			t.Errorf("expected error for truncation at %d", cut)
		}
	}
}

func TestUnmarshalEntryBadKind(t *testing.T) {
	buf := buildSampleTree().Marshal(nil)
	buf[0] = 7
	if _, err := UnmarshalEntry(buf); err == nil {
		t.Error("expected error for unknown entry kind")
	}
}

func TestUnmarshalEntryHugeChildCount(t *testing.T) {
	root := NewRoot(1)
	buf := root.Marshal(nil)
	// the trailing u32 is the child count; inflate it
	buf[len(buf)-4] = 0xFF
	buf[len(buf)-3] = 0xFF
	if _, err := UnmarshalEntry(buf); err == nil {
		t.Error("expected error for child count overrunning the buffer")
	}
}

func TestRemoveChild(t *testing.T) {
	root := buildSampleTree()
	docs := root.Child("docs")
	if docs == nil {
		t.Fatal("docs missing")
	}

	if !root.RemoveChild(docs) {
		t.Fatal("RemoveChild reported failure")
	}
	if root.Child("docs") != nil {
		t.Error("docs still present after removal")
	}
	if docs.Parent != nil {
		t.Error("removed child keeps a parent reference")
	}
	if root.RemoveChild(docs) {
		t.Error("second removal should report failure")
	}
}

func TestWalkVisitsPreorderWithPaths(t *testing.T) {
	root := buildSampleTree()

	var paths []string
	root.Walk("/", func(p string, _ *Entry) {
		paths = append(paths, p)
	})

	want := []string{"/", "/docs", "/docs/readme.txt", "/docs/sub", "/data.bin"}
	if len(paths) != len(want) {
		t.Fatalf("visited %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("visit %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestCountUsage(t *testing.T) {
	files, dirs, storage := buildSampleTree().CountUsage()

	if files != 2 {
		t.Errorf("files = %d, want 2", files)
	}
	if dirs != 2 {
		t.Errorf("directories = %d, want 2", dirs)
	}
	if storage != 1036 {
		t.Errorf("storage = %d, want 1036", storage)
	}
}
