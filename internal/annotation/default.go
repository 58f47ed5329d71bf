package annotation

import (
	"sync"
)

// The default store is created on first access with PolicyOverwrite, or
// installed explicitly at startup with SetDefault. It lives until the
// process exits.
var (
	defaultMu    sync.RWMutex
	defaultStore *Store
)

// Default returns the process-wide store
func Default() *Store {
	// Fast path once initialized
	defaultMu.RLock()
	s := defaultStore
	defaultMu.RUnlock()
	if s != nil {
		return s
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore == nil {
		defaultStore = NewStore()
	}
	return defaultStore
}

// SetDefault installs s as the process-wide store. Call it during startup,
// before any declarations are annotated through the default store.
func SetDefault(s *Store) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultStore = s
}

// ResetDefault drops the process-wide store (used for testing)
func ResetDefault() {
	SetDefault(nil)
}
