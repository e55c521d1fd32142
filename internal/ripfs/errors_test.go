package ripfs

import (
	"errors"
	"testing"

	"golang.org/x/xerrors"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("disk full")
	err := E(IOError, "spill", cause)
	if !Is(err, IOError) {
		t.Fatal("Is(err, IOError) = false, want true")
	}
	if Is(err, NotFound) {
		t.Fatal("Is(err, NotFound) = true, want false")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("not a ripfs error"), Internal) {
		t.Fatal("Is should be false for an error that isn't *Error")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("opaque")) != Internal {
		t.Fatal("KindOf(non-Error) should default to Internal")
	}
	if KindOf(E(AccessDenied, "open", nil)) != AccessDenied {
		t.Fatal("KindOf should recover the wrapped kind")
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("underlying")
	err := E(CorruptArchive, "parse", cause)
	if !xerrors.Is(err, cause) {
		t.Fatal("xerrors.Is should see through Unwrap to the cause")
	}
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	err := E(Unsupported, "ioctl", nil)
	want := "ioctl: unsupported"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
