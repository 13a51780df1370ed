// Package toml persists projects in a single TOML file with atomic
// replace-on-write semantics.
package toml

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/florean/agora/core"
	"github.com/florean/agora/store"
)

const (
	projectsFileMode = 0o600
	projectsDirMode  = 0o700
	tempFilePattern  = ".projects-*.toml.tmp"
)

// Repository stores every project in one TOML file.
type Repository struct {
	path string
	mu   *sync.RWMutex
}

var _ store.Store = (*Repository)(nil)

// Processes sharing a path share a lock, so concurrent repositories on
// the same file serialize their writes.
var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// NewRepository creates a repository backed by the given file path. The
// parent directory is created if missing.
func NewRepository(path string) (*Repository, error) {
	if path == "" {
		return nil, errors.New("projects path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve projects path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), projectsDirMode); err != nil {
		return nil, fmt.Errorf("ensure projects dir: %w", err)
	}
	return &Repository{path: abs, mu: lockForPath(abs)}, nil
}

// SaveProject inserts or replaces one project.
func (r *Repository) SaveProject(ctx context.Context, p core.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()

	encoded := toSchema(p)
	updated := false
	for i := range file.Projects {
		if file.Projects[i].ID == encoded.ID {
			file.Projects[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Projects = append(file.Projects, encoded)
	}

	return r.writeSchema(file)
}

// LoadProject returns one project by ID.
func (r *Repository) LoadProject(ctx context.Context, id string) (core.Project, error) {
	if err := ctx.Err(); err != nil {
		return core.Project{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return core.Project{}, err
	}
	for _, p := range file.Projects {
		if p.ID == id {
			return fromSchema(p)
		}
	}
	return core.Project{}, store.ErrNotFound
}

// LoadProjects returns every persisted project.
func (r *Repository) LoadProjects(ctx context.Context) ([]core.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}
	projects := make([]core.Project, 0, len(file.Projects))
	for _, p := range file.Projects {
		decoded, err := fromSchema(p)
		if err != nil {
			return nil, err
		}
		projects = append(projects, decoded)
	}
	return projects, nil
}

// DeleteProject removes one project by ID.
func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Projects[:0]
	found := false
	for _, p := range file.Projects {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return store.ErrNotFound
	}
	file.Projects = kept

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	var file fileSchema

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			file.applyDefaults()
			return file, nil
		}
		return file, fmt.Errorf("read projects file: %w", err)
	}

	if err := toml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse projects file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return file, err
	}
	return file, nil
}

// writeSchema replaces the projects file atomically: encode to a temp
// file in the same directory, then rename over the target.
func (r *Repository) writeSchema(file fileSchema) error {
	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode projects file: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(projectsFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace projects file: %w", err)
	}
	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()
	if mu, ok := pathLockMap[path]; ok {
		return mu
	}
	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
