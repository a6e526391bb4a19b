package errors

import "testing"

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Fatal("wrapping nil should return nil")
	}
}

func TestWrapMessage(t *testing.T) {
	err := Wrap(New("inner"), "outer")
	want := "outer, err: inner"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestIsThroughWrapChain(t *testing.T) {
	sentinel := New("sentinel")
	err := Wrap(Wrap(sentinel, "mid"), "top")
	if !Is(err, sentinel) {
		t.Fatal("Is should see through wrap chain")
	}
}
