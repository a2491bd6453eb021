// Package blob keeps in-memory payloads addressable through transient
// "blob:" references until they are revoked.
package blob

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheme prefixes every reference created by a Registry.
const Scheme = "blob:"

// ErrNotFound is returned when a reference was never created or has been revoked.
var ErrNotFound = errors.New("blob reference not found")

// Object is a payload registered under a reference.
type Object struct {
	MIMEType string
	Data     []byte
}

// Registry maps blob references to payloads.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]Object)}
}

// Create registers data and returns its reference.
func (r *Registry) Create(data []byte, mimeType string) string {
	url := Scheme + uuid.NewString()

	r.mu.Lock()
	r.objects[url] = Object{MIMEType: mimeType, Data: data}
	r.mu.Unlock()

	return url
}

// Resolve returns the payload behind url.
func (r *Registry) Resolve(url string) (Object, error) {
	r.mu.RLock()
	obj, ok := r.objects[url]
	r.mu.RUnlock()

	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Revoke releases url. Revoking an unknown reference is a no-op.
func (r *Registry) Revoke(url string) {
	r.mu.Lock()
	delete(r.objects, url)
	r.mu.Unlock()
}

// RevokeAfter releases url once d has elapsed.
func (r *Registry) RevokeAfter(url string, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() { r.Revoke(url) })
}

// Len reports how many references are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// IsRef reports whether s looks like a blob reference.
func IsRef(s string) bool {
	return strings.HasPrefix(s, Scheme)
}
