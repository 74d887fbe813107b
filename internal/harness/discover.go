package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScenarioNotFoundError is returned when a named scenario has no file.
type ScenarioNotFoundError struct {
	Name string
	Dir  string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q not found in %s", e.Name, e.Dir)
}

// FindScenarios returns every .yaml/.yml file under dir whose base name
// (without extension) matches the glob filter. An empty filter matches all.
func FindScenarios(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, "probe"); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// ScenarioPath resolves a scenario name to its file in dir.
func ScenarioPath(dir, name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &ScenarioNotFoundError{Name: name, Dir: dir}
}
