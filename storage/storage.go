// Package storage persists whole-collection task and category snapshots
// under per-profile namespaces, with write-replace atomicity so a crash
// mid-save never leaves a torn file.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"github.com/wote-dev/simplr-sub001/domain"
)

const (
	tasksFile      = "tasks.json"
	categoriesFile = "categories.json"
	uiStateFile    = "uistate.json"
	profilesFile   = "profiles.json"
)

// Storage provides access to the durable snapshot files. One subdirectory
// per profile keeps workspaces fully isolated; the profile registry lives
// at the root.
type Storage struct {
	root string
}

// New creates a Storage rooted at dir, creating the directory when missing.
func New(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Storage{root: dir}, nil
}

// SaveTasks replaces the task collection for the given profile.
func (s *Storage) SaveTasks(profile string, tasks []domain.Task) error {
	return s.writeSnapshot(s.profilePath(profile, tasksFile), tasks)
}

// LoadTasks reads the task collection for the given profile. A missing
// snapshot is an empty collection, not an error.
func (s *Storage) LoadTasks(profile string) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := s.readSnapshot(s.profilePath(profile, tasksFile), &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// SaveCategories replaces the category collection for the given profile.
func (s *Storage) SaveCategories(profile string, cats []domain.Category) error {
	return s.writeSnapshot(s.profilePath(profile, categoriesFile), cats)
}

// LoadCategories reads the category collection for the given profile.
func (s *Storage) LoadCategories(profile string) ([]domain.Category, error) {
	var cats []domain.Category
	if err := s.readSnapshot(s.profilePath(profile, categoriesFile), &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// SaveUIState replaces the selected filter and collapsed-name set.
func (s *Storage) SaveUIState(profile string, st domain.UIState) error {
	return s.writeSnapshot(s.profilePath(profile, uiStateFile), st)
}

// LoadUIState reads the selected filter and collapsed-name set.
func (s *Storage) LoadUIState(profile string) (domain.UIState, error) {
	var st domain.UIState
	if err := s.readSnapshot(s.profilePath(profile, uiStateFile), &st); err != nil {
		return domain.UIState{}, err
	}
	return st, nil
}

// SaveProfiles replaces the profile registry.
func (s *Storage) SaveProfiles(st domain.ProfileState) error {
	return s.writeSnapshot(filepath.Join(s.root, profilesFile), st)
}

// LoadProfiles reads the profile registry.
func (s *Storage) LoadProfiles() (domain.ProfileState, error) {
	var st domain.ProfileState
	if err := s.readSnapshot(filepath.Join(s.root, profilesFile), &st); err != nil {
		return domain.ProfileState{}, err
	}
	return st, nil
}

func (s *Storage) profilePath(profile, name string) string {
	return filepath.Join(s.root, profile, name)
}

func (s *Storage) writeSnapshot(path string, v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func (s *Storage) readSnapshot(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFileAtomic stages the payload next to the target, syncs it, and
// renames it into place, then syncs the directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := syncFile(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
