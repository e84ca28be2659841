package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// LoadDir reads every *.json form definition in dir and registers it on top
// of what the registry already holds. Invalid files are skipped with a
// warning; a missing directory is not an error.
func LoadDir(dir string, reg *Registry, logger *zap.Logger) (int, error) {
	if dir == "" {
		return 0, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(paths)

	loaded := 0
	for _, p := range paths {
		def, err := loadFile(p)
		if err != nil {
			logger.Warn("skipping form definition", zap.String("path", p), zap.Error(err))
			continue
		}
		reg.Register(def)
		loaded++
	}

	logger.Info("loaded form definitions", zap.String("dir", dir), zap.Int("count", loaded))
	return loaded, nil
}

func loadFile(path string) (*FormDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	var def FormDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
