package errcode

import (
	"errors"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]error{
		"not_found":      NotFound,
		"out_of_space":   OutOfSpace,
		"io_failure":     IOFailure,
		"pool_too_small": PoolTooSmall,
		"not_ready":      NotReady,
		"invalid_params": InvalidParams,
		"not_connected":  NotConnected,
		"error":          Error,
	}
	for want, e := range cases {
		if e == nil || e.Error() != want {
			t.Fatalf("error %q mismatch: got %#v", want, e)
		}
	}
}

func TestOfAndWrap(t *testing.T) {
	cause := errors.New("nack")
	err := IO("write", cause)

	if got := Of(err); got != IOFailure {
		t.Fatalf("Of = %q, want %q", got, IOFailure)
	}
	if !errors.Is(err, IOFailure) {
		t.Fatal("errors.Is(err, IOFailure) = false")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if got, want := err.Error(), "write: io_failure: nack"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if IO("read", nil) != nil {
		t.Fatal("IO(nil) should be nil")
	}
	if Of(nil) != OK {
		t.Fatal("Of(nil) should be OK")
	}
	if Of(NotFound) != NotFound {
		t.Fatal("bare Code not returned as-is")
	}
	if Of(errors.New("x")) != Error {
		t.Fatal("foreign error should map to Error")
	}
}
