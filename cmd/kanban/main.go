package main

import (
	"os"
	"strings"

	"github.com/google/uuid"

	"kanban-cli/internal/cli"
)

func isTaskID(s string) bool {
	return uuid.Validate(strings.TrimSpace(s)) == nil
}

func rewriteDirectTaskLookupArgs(argv []string) []string {
	// Convenience: `kanban <task-id>` works like `kanban tasks show <task-id>`.
	//
	// Cobra treats the first non-flag token as a subcommand, so argv is rewritten before
	// parsing. Persistent flags may come first, so look for the first positional token.
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--config-dir":  true,
		"--backend":     true,
		"--sqlite":      true,
		"--redis-url":   true,
		"--tables-conn": true,
		"--board":       true,
		"--log-level":   true,
		"--format":      true,
	}

	insert := func(i int) []string {
		out := make([]string, 0, len(argv)+2)
		out = append(out, argv[:i]...)
		out = append(out, "tasks", "show")
		return append(out, argv[i:]...)
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isTaskID(argv[i+1]) {
				return insert(i + 1)
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		}
		if isTaskID(a) {
			return insert(i)
		}
		return argv
	}
	return argv
}

func main() {
	os.Args = rewriteDirectTaskLookupArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
