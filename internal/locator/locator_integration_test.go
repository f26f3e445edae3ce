//go:build integration

package locator

import (
	"context"
	"testing"
)

func TestClient_Resolve_Integration(t *testing.T) {
	client := NewClient(Options{}, nil)

	t.Logf("Making API call to %s", client.RequestURL("1.1.1.1"))

	loc, err := client.Resolve(context.Background(), "1.1.1.1")
	if err != nil {
		t.Fatalf("Failed to resolve 1.1.1.1: %v", err)
	}

	t.Logf("Result: %s", loc)

	if !loc.Succeeded() {
		t.Fatalf("Expected success status, got %q (%s)", loc.Status, loc.Message)
	}
	if loc.Query != "1.1.1.1" {
		t.Errorf("Expected query 1.1.1.1, got %q", loc.Query)
	}
}

func TestClient_ResolvePrivateRange_Integration(t *testing.T) {
	client := NewClient(Options{}, nil)

	loc, err := client.Resolve(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("A private address should still produce a record: %v", err)
	}

	if loc.Succeeded() {
		t.Error("Expected fail status for a private address")
	}
	t.Logf("Message: %s", loc.Message)
}
