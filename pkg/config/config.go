package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SimulationKind is the only manifest Kind this package accepts.
const SimulationKind = "Simulation"

// Manifest is a simulation run described as a generic apiVersion/kind
// resource, the same envelope the rest of the corpus this tool was
// adapted from uses for every resource it applies.
type Manifest struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`

	// dir is the directory the manifest was loaded from, used to
	// resolve each task's programFile relative to the manifest
	// rather than the process's working directory.
	dir string
}

// Metadata names the run, mirroring the Metadata block every other
// resource kind in this tool's manifests carries.
type Metadata struct {
	Name string `yaml:"name"`
}

// Spec configures the kernel and lists the tasks it spawns before the
// first dispatch.
type Spec struct {
	RobustMode  bool       `yaml:"robustMode"`
	SystemTasks []int      `yaml:"systemTasks"`
	Tasks       []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes one task to spawn. Exactly one of Program or
// ProgramFile must be set: Program is inline assembly text, ProgramFile
// names a file (resolved relative to the manifest) holding the same.
type TaskSpec struct {
	ID          int    `yaml:"id"`
	Priority    int    `yaml:"priority"`
	Program     string `yaml:"program,omitempty"`
	ProgramFile string `yaml:"programFile,omitempty"`
}

// Load reads and parses a manifest from path, validating its envelope
// and every task entry.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m.dir = filepath.Dir(path)

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Kind != SimulationKind {
		return fmt.Errorf("unsupported manifest kind %q (want %q)", m.Kind, SimulationKind)
	}
	if len(m.Spec.Tasks) == 0 {
		return fmt.Errorf("manifest %q declares no tasks", m.Metadata.Name)
	}
	seen := make(map[int]bool, len(m.Spec.Tasks))
	for _, t := range m.Spec.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("task id %d declared more than once", t.ID)
		}
		seen[t.ID] = true
		if (t.Program == "") == (t.ProgramFile == "") {
			return fmt.Errorf("task id %d must set exactly one of program or programFile", t.ID)
		}
	}
	return nil
}

// Source returns a task's assembly text, reading ProgramFile relative
// to the manifest's own directory when Program wasn't given inline.
func (m *Manifest) Source(t TaskSpec) (string, error) {
	if t.Program != "" {
		return t.Program, nil
	}
	path := t.ProgramFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("task id %d: read program file: %w", t.ID, err)
	}
	return string(data), nil
}
