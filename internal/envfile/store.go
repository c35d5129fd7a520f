// Package envfile is the durable KEY=VALUE store behind the service's .env
// file. A Store is opened once per run and passed to every component that
// reads or writes configuration.
//
// Writes are read-modify-write against the file currently on disk: existing
// lines keep their position, comments and unrelated keys are untouched, new
// keys are appended, and the result replaces the file atomically.
package envfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Entry is one key/value pair in write order.
type Entry struct {
	Key   string
	Value string
}

// Store is the loaded configuration record.
type Store struct {
	path    string
	example string

	mu     sync.RWMutex
	values map[string]string
}

// Open loads path. A missing file is an empty record. If example is not
// empty and path does not exist, the first write seeds the file from it.
func Open(path, example string) (*Store, error) {
	s := &Store{path: path, example: example}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Exists reports whether the backing file is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Reload replaces the in-memory view with the file on disk.
func (s *Store) Reload() error {
	values, err := readValues(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Get returns the value for key and whether it is set.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Value returns the value for key or "".
func (s *Store) Value(key string) string {
	v, _ := s.Get(key)
	return v
}

// Keys returns all keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Configured reports whether key holds a real value: present, not blank,
// and not one of the template placeholders shipped in .env.example.
func (s *Store) Configured(key string) bool {
	v, ok := s.Get(key)
	return ok && !IsPlaceholder(v)
}

// IsPlaceholder reports whether v is empty or a template value such as
// "sk-your-openai-api-key" or "your-secret-id".
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}

var placeholderPrefixes = []string{"sk-your-", "your-", "your_"}

// Set writes one key.
func (s *Store) Set(key, value string) error {
	return s.SetAll([]Entry{{Key: key, Value: value}})
}

// SetAll writes every entry in a single atomic file replacement: either all
// of them land on disk or none do.
func (s *Store) SetAll(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if !keyPattern.MatchString(e.Key) {
			return fmt.Errorf("invalid config key %q", e.Key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentContent()
	if err != nil {
		return err
	}
	updated := merge(current, entries)

	// Validate what we are about to write before it replaces anything.
	values, err := godotenv.UnmarshalBytes(updated)
	if err != nil {
		return fmt.Errorf("render %s: %w", s.path, err)
	}
	for _, e := range entries {
		if values[e.Key] != lastValue(entries, e.Key) {
			return fmt.Errorf("value for %s cannot be stored in %s", e.Key, filepath.Base(s.path))
		}
	}
	if err := writeAtomic(s.path, updated); err != nil {
		return err
	}
	s.values = values
	return nil
}

func (s *Store) currentContent() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if s.example == "" {
		return nil, nil
	}
	data, err = os.ReadFile(s.example)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.example, err)
	}
	return data, nil
}

func lastValue(entries []Entry, key string) string {
	var v string
	for _, e := range entries {
		if e.Key == key {
			v = e.Value
		}
	}
	return v
}

func readValues(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return values, nil
}

// merge rewrites the lines of content that assign an entry's key and
// appends entries that were not present.
func merge(content []byte, entries []Entry) []byte {
	pending := make(map[string]string, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := pending[e.Key]; !dup {
			order = append(order, e.Key)
		}
		pending[e.Key] = e.Value
	}

	var out bytes.Buffer
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	written := make(map[string]bool, len(entries))
	for _, line := range lines {
		key := lineKey(line)
		if v, ok := pending[key]; ok {
			if written[key] {
				// Later duplicates would shadow the new value.
				continue
			}
			out.WriteString(render(key, v))
			written[key] = true
		} else {
			out.WriteString(strings.TrimRight(line, "\r"))
		}
		out.WriteByte('\n')
	}
	for _, key := range order {
		if written[key] {
			continue
		}
		out.WriteString(render(key, pending[key]))
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// lineKey returns the key assigned on line, or "" for blanks and comments.
func lineKey(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, "export ")
	idx := strings.IndexAny(trimmed, "=:")
	if idx <= 0 {
		return ""
	}
	return strings.TrimSpace(trimmed[:idx])
}

var bareValue = regexp.MustCompile(`^[A-Za-z0-9_./:@+,=-]*$`)

// render formats one assignment so godotenv reads back exactly value.
func render(key, value string) string {
	switch {
	case bareValue.MatchString(value):
		return key + "=" + value
	case !strings.ContainsAny(value, "'\\\n\r"):
		return key + "='" + value + "'"
	default:
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "$", `\$`)
		return key + `="` + r.Replace(value) + `"`
	}
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	perm := os.FileMode(0600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
