package decoder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoModel = errors.New("no recognizer model found")

// FindModel returns the first model directory in dir or one level below
// it. A model directory is named vosk-model* or holds am/ and conf/.
func FindModel(dir string) (string, error) {
	if dir == "" {
		return "", ErrNoModel
	}
	if isModelDir(dir) {
		return dir, nil
	}
	for depth := 0; depth < 2; depth++ {
		if found := scanModels(dir, depth); found != "" {
			return found, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoModel, dir)
}

func scanModels(dir string, depth int) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if depth == 0 {
			if isModelDir(path) {
				return path
			}
			continue
		}
		if found := scanModels(path, depth-1); found != "" {
			return found
		}
	}
	return ""
}

func isModelDir(path string) bool {
	if strings.HasPrefix(filepath.Base(path), "vosk-model") {
		return true
	}
	for _, sub := range []string{"am", "conf"} {
		if st, err := os.Stat(filepath.Join(path, sub)); err != nil || !st.IsDir() {
			return false
		}
	}
	return true
}
