package service

import (
	"errors"
	"fmt"
	"sync"

	"browser-clearance/internal/application/port/output"
)

var (
	ErrEmptyExtensionName     = errors.New("extension name is empty")
	ErrDuplicateExtensionName = errors.New("extension already registered")
)

var _ output.ExtensionRegistry = (*ExtensionRegistryImpl)(nil)

type ExtensionRegistryImpl struct {
	mu     sync.RWMutex
	byName map[string]output.ExtensionPort
	order  []output.ExtensionPort
}

func NewExtensionRegistry() *ExtensionRegistryImpl {
	return &ExtensionRegistryImpl{
		byName: make(map[string]output.ExtensionPort),
	}
}

func (r *ExtensionRegistryImpl) Register(ext output.ExtensionPort) error {
	name := ext.Name()
	if name == "" {
		return ErrEmptyExtensionName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateExtensionName, name)
	}
	r.byName[name] = ext
	r.order = append(r.order, ext)
	return nil
}

func (r *ExtensionRegistryImpl) Get(name string) (output.ExtensionPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext, ok := r.byName[name]
	return ext, ok
}

// All returns the extensions in registration order.
func (r *ExtensionRegistryImpl) All() []output.ExtensionPort {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]output.ExtensionPort, len(r.order))
	copy(result, r.order)
	return result
}
