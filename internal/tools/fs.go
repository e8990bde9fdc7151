package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileWriteTool lands artifacts inside the run workspace. Input is
// "path|content"; the path is confined to the workspace root.
type FileWriteTool struct {
	Root string
}

func NewFileWriteTool(root string) *FileWriteTool {
	absRoot, _ := filepath.Abs(root)
	return &FileWriteTool{Root: absRoot}
}

func (f *FileWriteTool) Name() string {
	return "fs.write"
}

func (f *FileWriteTool) Description() string {
	return "Write a file into the workspace. Input: relative/path.md|file content."
}

func (f *FileWriteTool) Execute(ctx context.Context, input string) Result {
	parts := strings.SplitN(input, "|", 2)
	if len(parts) != 2 {
		return Errf(KindText, "invalid fs.write input, want path|content")
	}
	name, content := parts[0], parts[1]

	target := filepath.Join(f.Root, name)
	rel, err := filepath.Rel(f.Root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Errf(KindText, "unsafe path attempt: %s", name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Errf(KindText, "failed to create directory: %v", err)
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return Errf(KindText, "failed to write file: %v", err)
	}

	return Result{Kind: KindText, Output: fmt.Sprintf("Wrote %d bytes to %s", len(content), name)}
}
