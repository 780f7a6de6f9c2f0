package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmrzaf/logship/internal/domain"
	"gopkg.in/yaml.v3"
)

type Repository interface {
	List() ([]*domain.Profile, error)
	Get(id string) (*domain.Profile, error)
	GetByPath(path string) (*domain.Profile, error)
}

type FileRepository struct {
	baseDir string
}

func NewFileRepository(baseDir string) *FileRepository {
	return &FileRepository{baseDir: baseDir}
}

func (r *FileRepository) List() ([]*domain.Profile, error) {
	if _, err := os.Stat(r.baseDir); os.IsNotExist(err) {
		return []*domain.Profile{}, nil
	}

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, err
	}

	profiles := make([]*domain.Profile, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		path := filepath.Join(r.baseDir, entry.Name())
		profile, err := r.loadProfile(path)
		if err != nil {
			continue
		}
		profiles = append(profiles, profile)
	}

	return profiles, nil
}

func (r *FileRepository) Get(id string) (*domain.Profile, error) {
	profiles, err := r.List()
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		if p.ID == id || p.Name == id {
			return p, nil
		}
	}

	return nil, fmt.Errorf("profile not found: %s", id)
}

func (r *FileRepository) GetByPath(path string) (*domain.Profile, error) {
	return r.loadProfile(path)
}

func (r *FileRepository) loadProfile(path string) (*domain.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var profile domain.Profile
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &profile)
	} else {
		err = yaml.Unmarshal(data, &profile)
	}
	if err != nil {
		return nil, err
	}

	if profile.ID == "" {
		profile.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &profile, nil
}
