package containerfs

import (
	"testing"

	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/types"
)

func TestNewRequiresContainerPath(t *testing.T) {
	_, err := New(Options{})
	if errors.KindOf(err) != errors.KindInvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestNewRejectsUnknownKEMMode(t *testing.T) {
	_, err := New(Options{
		ContainerPath: "/c.dat",
		Host:          NewMemoryHost(),
		KEMMode:       "Kyber31337",
	})
	if errors.KindOf(err) != errors.KindInvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestNewWithMemoryHost(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 1

	fs, err := New(Options{
		ContainerPath: "/c.dat",
		Key:           key,
		Host:          NewMemoryHost(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer fs.Close()

	if err := fs.CreateFile("/probe"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	exists, err := fs.FileExists("/probe")
	if err != nil || !exists {
		t.Errorf("FileExists = (%v, %v)", exists, err)
	}
}

func TestNewWithCBCFallback(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 1

	fs, err := New(Options{
		ContainerPath: "/cbc.dat",
		Key:           key,
		Host:          NewMemoryHost(),
		CBCFallback:   true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer fs.Close()

	f, err := fs.OpenFile("/f", types.ModeCreate)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := f.Write([]byte("cbc payload")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	r, err := fs.OpenFile("/f", types.ModeRead)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer r.Close()
	buf := make([]byte, 32)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "cbc payload" {
		t.Errorf("read = (%d, %v, %q)", n, err, buf[:n])
	}
}

func TestNewFromConfigRequiresConfig(t *testing.T) {
	if _, err := NewFromConfig(nil); err == nil {
		t.Error("expected error for nil configuration")
	}
}
