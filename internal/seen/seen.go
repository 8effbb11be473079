// Package seen persists the set of identifiers (senders and domains)
// already handled by earlier runs, so repeat scans skip known mail.
package seen

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Set is a collection of opaque identifier strings carried across runs.
type Set struct {
	items map[string]struct{}
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{items: make(map[string]struct{})}
}

// Load reads a set from path, one identifier per line. A missing file
// yields an empty set.
func Load(path string) (*Set, error) {
	s := NewSet()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("opening seen file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			s.items[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading seen file %s: %w", path, err)
	}

	return s, nil
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id string) bool {
	_, ok := s.items[id]
	return ok
}

// Add inserts id into the set. Empty identifiers are ignored.
func (s *Set) Add(id string) {
	if id == "" {
		return
	}
	s.items[id] = struct{}{}
}

// AddAll inserts every identifier in ids.
func (s *Set) AddAll(ids []string) {
	for _, id := range ids {
		s.Add(id)
	}
}

// Len returns the number of identifiers in the set.
func (s *Set) Len() int {
	return len(s.items)
}

// Save writes the set to path, one identifier per line, sorted.
func (s *Set) Save(path string) error {
	lines := make([]string, 0, len(s.items))
	for id := range s.items {
		lines = append(lines, id)
	}
	sort.Strings(lines)

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing seen file %s: %w", path, err)
	}
	return nil
}
