package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(NodeNotFound, "node abc not found")
	if err.Code != NodeNotFound {
		t.Errorf("code = %q, want %q", err.Code, NodeNotFound)
	}
	got := err.Error()
	if !strings.Contains(got, "NODE_NOT_FOUND") || !strings.Contains(got, "node abc not found") {
		t.Errorf("Error() = %q", got)
	}
}

func TestNewfFormats(t *testing.T) {
	err := Newf(QuerySyntax, "unexpected %q at position %d", "}", 14)
	if !strings.Contains(err.Error(), `unexpected "}" at position 14`) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fs.ErrNotExist
	err := Wrap(StorageCorrupt, "loading graph document", cause)

	if !stderrors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is should see through the wrap")
	}
	if !strings.Contains(err.Error(), "loading graph document") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !strings.Contains(err.Error(), fs.ErrNotExist.Error()) {
		t.Errorf("cause missing from message: %q", err.Error())
	}
}

func TestHasCodeThroughWrapChain(t *testing.T) {
	inner := New(InvalidReference, "edge source missing")
	outer := fmt.Errorf("applying mutation: %w", inner)

	if !HasCode(outer, InvalidReference) {
		t.Error("HasCode should find the code through %w wrapping")
	}
	if HasCode(outer, NodeNotFound) {
		t.Error("HasCode matched the wrong code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(InputTooLarge, "too big")); got != InputTooLarge {
		t.Errorf("CodeOf = %q, want %q", got, InputTooLarge)
	}
	if got := CodeOf(fmt.Errorf("plain error")); got != InternalError {
		t.Errorf("CodeOf on plain error = %q, want %q", got, InternalError)
	}
	if !HasCode(Wrap(QueryNotFound, "lookup", fmt.Errorf("io")), QueryNotFound) {
		t.Error("HasCode on wrapped error failed")
	}
}

func TestCodeOfUsesOutermostCode(t *testing.T) {
	inner := New(NodeNotFound, "missing")
	outer := Wrap(InternalError, "engine dispatch", inner)

	if got := CodeOf(outer); got != InternalError {
		t.Errorf("CodeOf = %q, want outermost %q", got, InternalError)
	}
	if !HasCode(outer, InternalError) {
		t.Error("outer code not found")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(InputRejected, "markup detected").WithDetails(map[string]string{"fragment": "<script"})
	details, ok := err.Details.(map[string]string)
	if !ok || details["fragment"] != "<script" {
		t.Errorf("details not attached: %#v", err.Details)
	}
}
