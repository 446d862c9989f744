package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// grepTool searches for a regex pattern in a file or directory tree.
type grepTool struct{}

func (t *grepTool) Name() string        { return "grep" }
func (t *grepTool) Description() string { return "Search for a regex pattern in a file or directory." }
func (t *grepTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string", "description": "Regex pattern to search for"},
			"path":    map[string]interface{}{"type": "string", "description": "File or directory to search"},
		},
		"required": []string{"pattern", "path"},
	}
}

func (t *grepTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	pattern, ok := args["pattern"]
	if !ok {
		return fail("pattern is required"), nil
	}
	path, ok := args["path"]
	if !ok {
		return fail("path is required"), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail(fmt.Sprintf("invalid regex: %v", err)), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(fmt.Sprintf("path not found: %v", err)), nil
	}

	var lines []string
	if info.IsDir() {
		filepath.Walk(path, func(p string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil || fi.IsDir() {
				return nil
			}
			lines = append(lines, grepFile(re, p)...)
			return nil
		})
	} else {
		lines = grepFile(re, path)
	}
	if len(lines) == 0 {
		return success(""), nil
	}
	return success(strings.Join(lines, "\n")), nil
}

func grepFile(re *regexp.Regexp, path string) []string {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var matches []string
	for i, line := range strings.Split(string(content), "\n") {
		if re.MatchString(line) {
			matches = append(matches, path+":"+strconv.Itoa(i+1)+": "+line)
		}
	}
	return matches
}
