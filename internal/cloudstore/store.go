// Package cloudstore lists and reads the S3-compatible bucket that backs the
// CVAT cloud storage.
package cloudstore

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
)

// Object is one key in the bucket
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the read-only view of a bucket used by the commands
type Store interface {
	// Name identifies the bucket in logs and reports
	Name() string
	// List returns every object under prefix, directory markers excluded
	List(ctx context.Context, prefix string) ([]Object, error)
	// Get returns the content of one object
	Get(ctx context.Context, key string) ([]byte, error)
}

// Keys returns the keys of objects
func Keys(objects []Object) []string {
	keys := make([]string, len(objects))
	for i, o := range objects {
		keys[i] = o.Key
	}
	return keys
}

// Memory is an in-memory Store
type Memory struct {
	name    string
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory store
func NewMemory(name string) *Memory {
	return &Memory{name: name, objects: make(map[string][]byte)}
}

// Put adds or replaces an object
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// Name implements Store
func (m *Memory) Name() string { return m.name }

// List implements Store; keys come back in lexical order like S3 listings
func (m *Memory) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Object
	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) || strings.HasSuffix(key, "/") {
			continue
		}
		out = append(out, Object{Key: key, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get implements Store
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, errors.Newf("object %s not found", key).
			Category(errors.CategoryNotFound).
			Component(componentName).
			Context("bucket", m.name).
			Build()
	}
	return data, nil
}

// readAll reads an object body with an upper bound
func readAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.Newf("object exceeds %d bytes", limit).
			Category(errors.CategoryLimit).
			Component(componentName).
			Build()
	}
	return data, nil
}
