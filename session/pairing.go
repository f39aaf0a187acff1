package session

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Record is the persisted console/bridge MAC pair (spec.md §3 PairingRecord,
// §6 "newline-separated key=value"). Created the first time the console
// writes SET_REPORT 0xF5 over the wired transport.
type Record struct {
	ConsoleMAC [6]byte
	LocalMAC   [6]byte
	Complete   bool
}

// Store guards a Record with its own mutex and writes through to disk on
// every update (spec.md §5: "write-through to disk, in-memory mutex").
type Store struct {
	mu   sync.Mutex
	path string
	rec  Record
}

// NewStore loads an existing pairing file at path if present; a missing
// file is not an error (no prior pairing).
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	rec, err := load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	s.rec = rec
	return s, nil
}

// Get returns a copy of the current pairing record and whether pairing has
// completed (a console MAC has been captured).
func (s *Store) Get() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, s.rec.Complete
}

// SetConsoleMAC records the console's wireless MAC, learned during wired
// SET_REPORT 0xF5, and writes the record through to disk.
func (s *Store) SetConsoleMAC(localMAC, consoleMAC [6]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = Record{ConsoleMAC: consoleMAC, LocalMAC: localMAC, Complete: true}
	return save(s.path, s.rec)
}

// Clear removes the stored pairing, forcing a fresh wired pairing.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = Record{}
	return os.Remove(s.path)
}

func load(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	var rec Record
	var haveConsole, haveLocal bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		mac, err := parseMAC(v)
		if err != nil {
			continue
		}
		switch k {
		case "PS3_MAC":
			rec.ConsoleMAC = mac
			haveConsole = true
		case "LOCAL_MAC":
			rec.LocalMAC = mac
			haveLocal = true
		}
	}
	rec.Complete = haveConsole && haveLocal
	return rec, scanner.Err()
}

func save(path string, rec Record) error {
	content := fmt.Sprintf("PS3_MAC=%s\nLOCAL_MAC=%s\n", formatMAC(rec.ConsoleMAC), formatMAC(rec.LocalMAC))
	return os.WriteFile(path, []byte(content), 0o600)
}

func formatMAC(mac [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("session: malformed MAC %q", s)
	}
	for i, p := range parts {
		var b int
		if _, err := fmt.Sscanf(p, "%02X", &b); err != nil {
			return mac, fmt.Errorf("session: malformed MAC %q: %w", s, err)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}
