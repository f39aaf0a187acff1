package driver

import (
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Driver)
)

// Register adds a driver under a case-insensitive name. Intended to be
// called from each driver package's init(), mirroring the reference
// bridge's device-type registration pattern.
func Register(name string, d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = d
}

// Get retrieves a registered driver by name. Returns nil if not found.
func Get(name string) Driver {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[strings.ToLower(name)]
}

// List returns every registered driver name.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// MatchVIDPID scans all registered drivers for one that claims the given
// VID/PID. When several match, which one is returned is not defined. The
// run command does not use it; it selects a driver by trying each one's
// FindDevice.
func MatchVIDPID(vid, pid uint16) Driver {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, d := range registry {
		if d.Match(vid, pid) {
			return d
		}
	}
	return nil
}
