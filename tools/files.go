// Package tools provides the builtin tool capabilities registered with the
// agent: file I/O, glob listing, a calculator, web search, and a persistent
// memory store.
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/seaborne/helmsman/agent"
)

const maxListedFiles = 500

// FileTools serves read_file, write_file, and list_files rooted at a working
// directory. Paths matching any restricted glob pattern are denied.
type FileTools struct {
	root       string
	restricted []string
}

// RegisterFileTools registers the file capabilities on the registry.
// restricted holds doublestar glob patterns (relative to root) that file
// tools must refuse to touch.
func RegisterFileTools(reg *agent.Registry, root string, restricted []string) *FileTools {
	if root == "" {
		root, _ = os.Getwd()
	}
	ft := &FileTools{root: root, restricted: restricted}

	reg.Register(agent.Tool{
		Name:        "read_file",
		Description: "Read a text file and return its content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file, relative to the working directory.",
				},
			},
			"required": []string{"path"},
		},
		Handler: ft.readFile,
	})

	reg.Register(agent.Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating it and any parent directories. Overwrites existing content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Destination path, relative to the working directory.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The full file content to write.",
				},
			},
			"required": []string{"path", "content"},
		},
		Handler: ft.writeFile,
	})

	reg.Register(agent.Tool{
		Name:        "list_files",
		Description: "List files matching a glob pattern (doublestar syntax, e.g. '**/*.go').",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Glob pattern relative to the working directory. Defaults to '*'.",
				},
			},
		},
		Handler: ft.listFiles,
	})

	return ft
}

// resolve maps a tool-supplied path onto the working directory and rejects
// escapes and restricted targets.
func (ft *FileTools) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", path)
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the working directory: %s", path)
	}
	for _, pattern := range ft.restricted {
		match, err := doublestar.PathMatch(pattern, cleaned)
		if err != nil {
			return "", fmt.Errorf("invalid restriction pattern %q: %w", pattern, err)
		}
		if match {
			return "", fmt.Errorf("access to %s is restricted", path)
		}
	}
	return filepath.Join(ft.root, cleaned), nil
}

func (ft *FileTools) readFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := agent.StringArg(args, "path")
	resolved, err := ft.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (ft *FileTools) writeFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := agent.StringArg(args, "path")
	content, ok := agent.StringArg(args, "content")
	if !ok {
		return "", fmt.Errorf("content is required")
	}
	resolved, err := ft.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (ft *FileTools) listFiles(ctx context.Context, args map[string]any) (string, error) {
	pattern, _ := agent.StringArg(args, "pattern")
	if pattern == "" {
		pattern = "*"
	}

	matches, err := doublestar.Glob(os.DirFS(ft.root), pattern)
	if err != nil {
		return "", fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(matches)

	if len(matches) == 0 {
		return "no files match " + pattern, nil
	}
	truncated := false
	if len(matches) > maxListedFiles {
		matches = matches[:maxListedFiles]
		truncated = true
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(m)
		sb.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&sb, "[list truncated at %d entries]\n", maxListedFiles)
	}
	return sb.String(), nil
}
