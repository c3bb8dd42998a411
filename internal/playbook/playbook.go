// Package playbook loads compliance rule playbooks from YAML files and
// keeps an in-memory library of them, optionally hot-reloading when the
// playbook directory changes. Persistence of playbooks lives elsewhere;
// this package only reads.
package playbook

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"redline/internal/rules"
)

// Playbook is one named set of compliance rules.
type Playbook struct {
	Name  string       `yaml:"name"`
	Rules []rules.Rule `yaml:"rules"`
}

// Load reads a single playbook file.
func Load(fs afero.Fs, path string) (*Playbook, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}

	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse playbook %s: %w", path, err)
	}
	if pb.Name == "" {
		pb.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(pb.Rules) == 0 {
		return nil, fmt.Errorf("playbook %s has no rules", path)
	}

	seen := make(map[string]struct{}, len(pb.Rules))
	for _, r := range pb.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("playbook %s has a rule without an id", path)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("playbook %s has duplicate rule id %q", path, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return &pb, nil
}

// LoadDir reads every .yaml/.yml playbook in a directory.
func LoadDir(fs afero.Fs, dir string) ([]*Playbook, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook dir: %w", err)
	}

	var out []*Playbook
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		pb, err := Load(fs, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, pb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Library is a concurrency-safe playbook registry.
type Library struct {
	mu        sync.RWMutex
	playbooks map[string]*Playbook
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{playbooks: make(map[string]*Playbook)}
}

// Replace swaps the whole library contents.
func (l *Library) Replace(pbs []*Playbook) {
	next := make(map[string]*Playbook, len(pbs))
	for _, pb := range pbs {
		next[pb.Name] = pb
	}
	l.mu.Lock()
	l.playbooks = next
	l.mu.Unlock()
}

// Get returns a playbook by name.
func (l *Library) Get(name string) (*Playbook, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pb, ok := l.playbooks[name]
	return pb, ok
}

// Names lists the loaded playbook names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.playbooks))
	for name := range l.playbooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
