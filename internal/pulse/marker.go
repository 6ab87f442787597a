package pulse

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Marker is the liveness file. Deleting it from outside asks a running
// engine to shut down.
type Marker struct {
	path string
}

func NewMarker(path string) *Marker { return &Marker{path: path} }

func (m *Marker) Path() string { return m.path }

func (m *Marker) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Create writes the current pid into the marker, replacing any stale one.
func (m *Marker) Create() error {
	if err := os.WriteFile(m.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	return nil
}

func (m *Marker) Delete() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}
