package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// readTool reads a file's contents.
type readTool struct{ policy *Policy }

func (t *readTool) Name() string        { return "read" }
func (t *readTool) Description() string { return "Read the contents of a file at the given path." }
func (t *readTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path to the file to read"},
		},
		"required": []string{"path"},
	}
}

func (t *readTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	path, ok := args["path"]
	if !ok {
		return fail("path is required"), nil
	}
	if allowed, reason := t.policy.CheckPath(t.Name(), path); !allowed {
		return fail(reason), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	return success(string(content)), nil
}

// writeTool writes a file, creating parent directories as needed.
type writeTool struct{ policy *Policy }

func (t *writeTool) Name() string { return "write" }
func (t *writeTool) Description() string {
	return "Write content to a file at the given path. Creates parent directories if needed."
}
func (t *writeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "Content to write to the file"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *writeTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	path, ok := args["path"]
	if !ok {
		return fail("path is required"), nil
	}
	content, ok := args["content"]
	if !ok {
		return fail("content is required"), nil
	}
	if allowed, reason := t.policy.CheckPath(t.Name(), path); !allowed {
		return fail(reason), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fail(fmt.Sprintf("failed to create directories: %v", err)), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fail(fmt.Sprintf("failed to write file: %v", err)), nil
	}
	return success("ok"), nil
}

// editTool does an exact find-and-replace in a file.
type editTool struct{ policy *Policy }

func (t *editTool) Name() string        { return "edit" }
func (t *editTool) Description() string { return "Find and replace text in a file. The old text must match exactly." }
func (t *editTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path to the file to edit"},
			"old":  map[string]interface{}{"type": "string", "description": "Text to find (exact match)"},
			"new":  map[string]interface{}{"type": "string", "description": "Text to replace with"},
		},
		"required": []string{"path", "old", "new"},
	}
}

func (t *editTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	path, ok := args["path"]
	if !ok {
		return fail("path is required"), nil
	}
	oldText, ok := args["old"]
	if !ok {
		return fail("old is required"), nil
	}
	newText, ok := args["new"]
	if !ok {
		return fail("new is required"), nil
	}
	if allowed, reason := t.policy.CheckPath(t.Name(), path); !allowed {
		return fail(reason), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	if !strings.Contains(string(content), oldText) {
		return fail("pattern not found in file"), nil
	}
	updated := strings.Replace(string(content), oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fail(fmt.Sprintf("failed to write file: %v", err)), nil
	}
	return success("ok"), nil
}

// globTool finds files matching a glob pattern.
type globTool struct{}

func (t *globTool) Name() string        { return "glob" }
func (t *globTool) Description() string { return "Find files matching a glob pattern." }
func (t *globTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string", "description": "Glob pattern (e.g. *.go, **/*.txt)"},
		},
		"required": []string{"pattern"},
	}
}

func (t *globTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	pattern, ok := args["pattern"]
	if !ok {
		return fail("pattern is required"), nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fail(fmt.Sprintf("invalid pattern: %v", err)), nil
	}
	return success(strings.Join(matches, "\n")), nil
}

// lsTool lists directory contents.
type lsTool struct{}

func (t *lsTool) Name() string        { return "ls" }
func (t *lsTool) Description() string { return "List directory contents." }
func (t *lsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Directory path to list"},
		},
		"required": []string{"path"},
	}
}

func (t *lsTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	path, ok := args["path"]
	if !ok {
		return fail("path is required"), nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fail(fmt.Sprintf("failed to read directory: %v", err)), nil
	}
	var sb strings.Builder
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		marker := "f"
		if e.IsDir() {
			marker = "d"
		}
		fmt.Fprintf(&sb, "%s %10d %s\n", marker, info.Size(), e.Name())
	}
	return success(sb.String()), nil
}
