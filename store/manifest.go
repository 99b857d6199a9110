package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theoremus-urban-solutions/transitdata/gtfs"
)

// ManifestKey is where the manifest lives inside a store.
const ManifestKey = "manifest.yml"

// maxRuns bounds the run history kept in the manifest.
const maxRuns = 20

// Artifact is a manifest record of one stored file.
type Artifact struct {
	Key          string            `yaml:"key" json:"key"`
	Dataset      string            `yaml:"dataset" json:"dataset"`
	Feed         string            `yaml:"feed,omitempty" json:"feed,omitempty"`
	Slot         string            `yaml:"slot,omitempty" json:"slot,omitempty"`
	SHA1         string            `yaml:"sha1,omitempty" json:"sha1,omitempty"`
	Checksum     string            `yaml:"checksum" json:"checksum"`
	Size         int64             `yaml:"size" json:"size"`
	FetchedAt    time.Time         `yaml:"fetched_at,omitempty" json:"fetched_at,omitempty"`
	StoredAt     time.Time         `yaml:"stored_at" json:"stored_at"`
	SourceURL    string            `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	ETag         string            `yaml:"etag,omitempty" json:"etag,omitempty"`
	LastModified string            `yaml:"last_modified,omitempty" json:"last_modified,omitempty"`
	GTFS         *gtfs.Summary     `yaml:"gtfs,omitempty" json:"gtfs,omitempty"`
	Attributes   map[string]string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// Run is a manifest record of one refresh run.
type Run struct {
	ID        string    `yaml:"id" json:"id"`
	Started   time.Time `yaml:"started" json:"started"`
	Finished  time.Time `yaml:"finished" json:"finished"`
	Status    string    `yaml:"status" json:"status"`
	Stored    int       `yaml:"stored" json:"stored"`
	Unchanged int       `yaml:"unchanged" json:"unchanged"`
	Pruned    int       `yaml:"pruned" json:"pruned"`
	Failed    int       `yaml:"failed" json:"failed"`
	Errors    []string  `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// Manifest indexes stored artifacts and recent runs. Safe for concurrent use.
type Manifest struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
	runs      []Run
}

type manifestFile struct {
	Artifacts []Artifact `yaml:"artifacts"`
	Runs      []Run      `yaml:"runs"`
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{artifacts: map[string]Artifact{}}
}

// LoadManifest reads the manifest from s; a missing manifest yields an empty one.
func LoadManifest(ctx context.Context, s Store) (*Manifest, error) {
	rc, err := s.Open(ctx, ManifestKey)
	if errors.Is(err, ErrNotFound) {
		return NewManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var f manifestFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m := NewManifest()
	for _, a := range f.Artifacts {
		m.artifacts[a.Key] = a
	}
	m.runs = f.Runs
	return m, nil
}

// Save writes the manifest to s.
func (m *Manifest) Save(ctx context.Context, s Store) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.Put(ctx, ManifestKey, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Marshal encodes the manifest as YAML with artifacts sorted by key.
func (m *Manifest) Marshal() ([]byte, error) {
	f := manifestFile{Artifacts: m.Artifacts(), Runs: m.Runs()}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Manifest) Get(key string) (Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[key]
	return a, ok
}

func (m *Manifest) Upsert(a Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.Key] = a
}

func (m *Manifest) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.artifacts, key)
}

// Keys returns the sorted keys starting with prefix.
func (m *Manifest) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.artifacts {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Artifacts returns every artifact sorted by key.
func (m *Manifest) Artifacts() []Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Artifact, 0, len(m.artifacts))
	for _, a := range m.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// AppendRun records a run, keeping the most recent maxRuns.
func (m *Manifest) AppendRun(r Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	if len(m.runs) > maxRuns {
		m.runs = append([]Run(nil), m.runs[len(m.runs)-maxRuns:]...)
	}
}

// Runs returns the run history, oldest first.
func (m *Manifest) Runs() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Run(nil), m.runs...)
}

func (m *Manifest) LastRun() (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.runs) == 0 {
		return Run{}, false
	}
	return m.runs[len(m.runs)-1], true
}
