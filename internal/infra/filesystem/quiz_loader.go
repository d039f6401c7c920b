package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lorequiz-service/internal/domain"
)

var extensions = []string{".json", ".yaml", ".yml"}

// QuizLoader reads quiz definitions from <dir>/<quizID>.{json,yaml,yml}.
// JSON is a subset of YAML, so one decoder serves every extension.
type QuizLoader struct {
	dir string
}

func NewQuizLoader(dir string) *QuizLoader {
	return &QuizLoader{dir: dir}
}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	if quizID == "" || strings.ContainsAny(quizID, `/\`) || strings.Contains(quizID, "..") {
		return domain.QuizDefinition{}, fmt.Errorf("quiz id %q: %w", quizID, domain.ErrQuizNotFound)
	}

	for _, ext := range extensions {
		path := filepath.Join(l.dir, quizID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.QuizDefinition{}, fmt.Errorf("read quiz %s: %w", path, err)
		}

		var def domain.QuizDefinition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return domain.QuizDefinition{}, fmt.Errorf("decode quiz %s: %w", path, err)
		}
		if def.ID == "" {
			def.ID = quizID
		}
		return def, nil
	}
	return domain.QuizDefinition{}, domain.ErrQuizNotFound
}

// List returns the ids of every quiz file in the directory.
func (l *QuizLoader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !isQuizExt(ext) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func isQuizExt(ext string) bool {
	for _, candidate := range extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
