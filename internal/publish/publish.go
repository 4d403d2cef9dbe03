// Package publish writes the board as a tree of markdown pages.
package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"kanban-cli/internal/model"
)

type WriteOptions struct {
	Title     string
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

// WriteBoard writes index.md plus tasks/<id>.md for every task under toDir.
func WriteBoard(b model.Board, toDir string, opt WriteOptions) (WriteResult, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	toDir = filepath.Clean(toDir)

	tasksDir := filepath.Join(toDir, "tasks")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		return WriteResult{}, err
	}

	indexPath := filepath.Join(toDir, "index.md")
	if err := writeFile(indexPath, []byte(RenderBoardMarkdown(b, opt.Title)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}

	// Stop on the first error; earlier pages stay written.
	written := []string{indexPath}
	for _, c := range b.Columns {
		for _, t := range c.Tasks {
			p := filepath.Join(tasksDir, t.ID+".md")
			if err := writeFile(p, []byte(RenderTaskMarkdown(t, c.Title)), opt.Overwrite); err != nil {
				return WriteResult{Written: written}, err
			}
			written = append(written, p)
		}
	}
	return WriteResult{Written: written}, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
