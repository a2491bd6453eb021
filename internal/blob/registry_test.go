package blob

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_CreateResolveRevoke(t *testing.T) {
	r := NewRegistry()

	url := r.Create([]byte("jpeg bytes"), "image/jpeg")
	if !IsRef(url) {
		t.Fatalf("Create returned %q, want %s prefix", url, Scheme)
	}

	obj, err := r.Resolve(url)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if string(obj.Data) != "jpeg bytes" || obj.MIMEType != "image/jpeg" {
		t.Errorf("Resolve = %+v", obj)
	}

	r.Revoke(url)
	if _, err := r.Resolve(url); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve after revoke error = %v, want ErrNotFound", err)
	}

	// Second revoke is harmless
	r.Revoke(url)
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_UniqueReferences(t *testing.T) {
	r := NewRegistry()
	a := r.Create(nil, "video/mp4")
	b := r.Create(nil, "video/mp4")
	if a == b {
		t.Fatalf("two Create calls returned the same reference %q", a)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistry_RevokeAfter(t *testing.T) {
	r := NewRegistry()
	url := r.Create([]byte{1}, "video/mp4")

	r.RevokeAfter(url, 10*time.Millisecond)

	if _, err := r.Resolve(url); err != nil {
		t.Fatalf("reference released early: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("reference was not released after delay")
}
