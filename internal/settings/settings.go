// ABOUTME: Persisted service state
// ABOUTME: Records whether the receiver was running and the last played format
package settings

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/screamrx/screamrx/pkg/receiver"
	yaml "gopkg.in/yaml.v2"
)

// Settings is the record written to disk
type Settings struct {
	ServiceRunning bool `yaml:"service_running"`
	Channels       int  `yaml:"channels"`
	SampleRate     int  `yaml:"sample_rate"`
	SampleSize     int  `yaml:"sample_size"`
}

// FromStatus derives a record from a status snapshot. The last known format
// is kept from prev while nothing is playing.
func FromStatus(prev Settings, st receiver.Status) Settings {
	next := prev
	next.ServiceRunning = st.Running
	if f := st.Format; f != nil {
		next.Channels = int(f.Channels)
		next.SampleRate = int(f.SampleRate)
		next.SampleSize = int(f.SampleSize)
	}
	return next
}

// Store keeps Settings in a YAML file
type Store struct {
	path string

	mu  sync.Mutex
	cur Settings
}

// Open loads path if it exists; a missing file yields zero settings
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	buf, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, errors.Wrapf(err, "failed to read settings %s", path)
	}

	if err := yaml.Unmarshal(buf, &s.cur); err != nil {
		return nil, errors.Wrapf(err, "failed to parse settings %s", path)
	}
	return s, nil
}

// Get returns the current settings
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Save writes settings when they differ from what is stored
func (s *Store) Save(next Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next == s.cur {
		return nil
	}

	buf, err := yaml.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "failed to encode settings")
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create settings directory")
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return errors.Wrap(err, "failed to write settings")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to replace settings")
	}

	s.cur = next
	return nil
}

// Update folds a status snapshot into the stored record
func (s *Store) Update(st receiver.Status) error {
	return s.Save(FromStatus(s.Get(), st))
}
