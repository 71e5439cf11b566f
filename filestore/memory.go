package filestore

import (
	"context"
	"sync"

	"github.com/rdc/incentive-engine/claim"
)

// Object is a stored file.
type Object struct {
	Data        []byte
	ContentType string
	Public      bool
}

// Memory keeps files in process. URLs use the "memory://" scheme.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*Object)}
}

func (m *Memory) Upload(_ context.Context, path string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = &Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return "memory://" + path, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *Memory) MakePublic(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	if !ok {
		return &claim.NotFoundError{Kind: "file", ID: path}
	}
	obj.Public = true
	return nil
}

// Get returns a copy of the stored object.
func (m *Memory) Get(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return Object{}, false
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return cp, true
}
