package runstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"yt-clip-studio/internal/model"
)

const (
	jobsCacheFile   = "jobs.json"
	jobsCacheSchema = 1
	tempFilePattern = ".clipstudio-tmp-*"
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

// JobsCache is the last job collection seen by the client, newest first.
type JobsCache struct {
	SchemaVersion int         `json:"schema_version"`
	UpdatedAt     string      `json:"updated_at"`
	APIBase       string      `json:"api_base,omitempty"`
	Jobs          []model.Job `json:"jobs"`
}

func Mkdir(path string) error {
	if err := os.MkdirAll(path, defaultDirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// WriteStream copies r into path through a temp file in the same directory,
// so readers never observe a partial file.
func WriteStream(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return 0, fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	fail := func(format string, err error) (int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf(format, path, err)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		return fail("write temp file for %s: %w", err)
	}
	if err := tmp.Chmod(defaultFileMode); err != nil {
		return fail("chmod temp file for %s: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return n, nil
}

func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	_, err = WriteStream(path, bytes.NewReader(data))
	return err
}

func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}

func JobsCachePath(dataDir string) string {
	return filepath.Join(dataDir, jobsCacheFile)
}

// LoadJobs returns an empty cache when none was written yet.
func LoadJobs(dataDir string) (JobsCache, error) {
	var cache JobsCache
	err := ReadJSON(JobsCachePath(dataDir), &cache)
	if errors.Is(err, os.ErrNotExist) {
		return JobsCache{SchemaVersion: jobsCacheSchema, Jobs: []model.Job{}}, nil
	}
	if err != nil {
		return JobsCache{}, err
	}
	if cache.SchemaVersion != jobsCacheSchema {
		return JobsCache{}, fmt.Errorf("unsupported jobs cache schema %d in %s", cache.SchemaVersion, JobsCachePath(dataDir))
	}
	if cache.Jobs == nil {
		cache.Jobs = []model.Job{}
	}
	return cache, nil
}

func SaveJobs(dataDir, apiBase string, jobs []model.Job) error {
	cache := JobsCache{
		SchemaVersion: jobsCacheSchema,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
		APIBase:       apiBase,
		Jobs:          jobs,
	}
	if cache.Jobs == nil {
		cache.Jobs = []model.Job{}
	}
	return WriteJSON(JobsCachePath(dataDir), cache)
}

// MergeJobs upserts snapshots into the cached collection and saves it.
func MergeJobs(dataDir, apiBase string, snapshots ...model.Job) error {
	cache, err := LoadJobs(dataDir)
	if err != nil {
		return err
	}
	jobs := model.NewJobCollection(cache.Jobs...)
	for _, snap := range snapshots {
		jobs.Upsert(snap)
	}
	return SaveJobs(dataDir, apiBase, jobs.Jobs())
}
