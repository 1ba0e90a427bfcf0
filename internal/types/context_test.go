package types

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_84a1f2")

	if got := GetRequestID(ctx); got != "req_84a1f2" {
		t.Errorf("GetRequestID = %q, want %q", got, "req_84a1f2")
	}
}

func TestRequestIDAbsent(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on bare context = %q, want empty string", got)
	}
}

func TestRequestIDOverwrite(t *testing.T) {
	ctx := WithRequestID(context.Background(), "first")
	ctx = WithRequestID(ctx, "second")

	if got := GetRequestID(ctx); got != "second" {
		t.Errorf("GetRequestID = %q, want %q", got, "second")
	}
}

func TestRequestIDKeyIsPrivate(t *testing.T) {
	// A foreign key with the same underlying string must not collide.
	type otherKey string
	ctx := context.WithValue(context.Background(), otherKey("request_id"), "spoofed")

	if got := GetRequestID(ctx); got != "" {
		t.Errorf("foreign-keyed value leaked into GetRequestID: %q", got)
	}
}
