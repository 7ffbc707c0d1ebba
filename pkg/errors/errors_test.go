package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(KindFileNotFound, "missing")

	if err.Kind != KindFileNotFound {
		t.Errorf("expected kind %s, got %s", KindFileNotFound, err.Kind)
	}
	if err.Category != CategoryFilesystem {
		t.Errorf("expected category %s, got %s", CategoryFilesystem, err.Category)
	}
	if err.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}

func TestGetCategory(t *testing.T) {
	tests := []struct {
		kind     Kind
		category Category
	}{
		{KindFileNotFound, CategoryFilesystem},
		{KindPermissionDenied, CategoryFilesystem},
		{KindAlreadyExists, CategoryFilesystem},
		{KindNotADirectory, CategoryFilesystem},
		{KindNotAFile, CategoryFilesystem},
		{KindIoError, CategoryIO},
		{KindInvalidFormat, CategoryIO},
		{KindInvalidArgument, CategoryArgument},
		{KindNotImplemented, CategoryArgument},
		{KindNotSupported, CategoryArgument},
		{KindHsmUnavailable, CategorySecurity},
		{KindResourceExhausted, CategoryResource},
		{KindInitializationFailed, CategoryInternal},
		{KindUnknown, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := GetCategory(tt.kind); got != tt.category {
				t.Errorf("GetCategory(%s) = %s, want %s", tt.kind, got, tt.category)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	err := New(KindIoError, "write failed").
		WithComponent("engine").
		WithOperation("flush").
		WithPath("/a/b.txt").
		WithCause(fmt.Errorf("disk full"))

	msg := err.Error()
	for _, want := range []string{"engine", "flush", "IO_ERROR", "write failed", "/a/b.txt", "disk full"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error string %q missing %q", msg, want)
		}
	}
}

func TestErrorIs(t *testing.T) {
	err := NotFound("/missing.txt").WithOperation("open_file")

	if !stderrors.Is(err, New(KindFileNotFound, "")) {
		t.Error("expected errors.Is match on same kind")
	}
	if stderrors.Is(err, New(KindAlreadyExists, "")) {
		t.Error("unexpected errors.Is match on different kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := IO("read failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected unwrap chain to reach the cause")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"containerfs error", ResourceExhausted("quota"), KindResourceExhausted},
		{"wrapped containerfs error", fmt.Errorf("outer: %w", InvalidFormat("bad magic")), KindInvalidFormat},
		{"foreign error", fmt.Errorf("plain"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	if !IsKind(NotAFile("/dir"), KindNotAFile) {
		t.Error("expected IsKind true for matching kind")
	}
	if IsKind(nil, KindNotAFile) {
		t.Error("expected IsKind false for nil error")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"NotFound", NotFound("/x"), KindFileNotFound},
		{"AlreadyExists", AlreadyExists("/x"), KindAlreadyExists},
		{"PermissionDenied", PermissionDenied("/x", "denied"), KindPermissionDenied},
		{"NotADirectory", NotADirectory("/x"), KindNotADirectory},
		{"NotAFile", NotAFile("/x"), KindNotAFile},
		{"InvalidArgument", InvalidArgument("bad"), KindInvalidArgument},
		{"InvalidFormat", InvalidFormat("bad"), KindInvalidFormat},
		{"ResourceExhausted", ResourceExhausted("quota"), KindResourceExhausted},
		{"NotSupported", NotSupported("mount"), KindNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, tt.err.Kind)
			}
		})
	}
}
