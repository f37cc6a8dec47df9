package agent

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileHandler_WriteReadRoundTrip(t *testing.T) {
	fh := NewFileHandler()
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.txt")

	writeResult, err := fh.Execute(context.Background(), nil, map[string]interface{}{
		"operation": "write",
		"path":      path,
		"content":   "hello",
	})
	if err != nil {
		t.Fatalf("Execute write: %v", err)
	}
	if writeResult.Variables["operation_success"] != true {
		t.Fatalf("write did not succeed: %#v", writeResult.Output)
	}

	readResult, err := fh.Execute(context.Background(), nil, map[string]interface{}{
		"operation": "read",
		"path":      path,
	})
	if err != nil {
		t.Fatalf("Execute read: %v", err)
	}
	if readResult.Output["raw_content"] != "hello" {
		t.Fatalf("unexpected content: %#v", readResult.Output["raw_content"])
	}
}

func TestFileHandler_ReadMissingFileAbsorbsError(t *testing.T) {
	fh := NewFileHandler()
	result, err := fh.Execute(context.Background(), nil, map[string]interface{}{
		"operation": "read",
		"path":      "/nonexistent/path/does-not-exist.txt",
	})
	if err != nil {
		t.Fatalf("expected no Go error (operation failures are absorbed), got %v", err)
	}
	if result.Variables["operation_success"] != false {
		t.Fatalf("expected operation_success=false, got %#v", result.Variables)
	}
	if _, ok := result.Output["error"]; !ok {
		t.Fatalf("expected output.error to be set, got %#v", result.Output)
	}
}

func TestFileHandler_ListDirectory(t *testing.T) {
	fh := NewFileHandler()
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := fh.Execute(context.Background(), nil, map[string]interface{}{
			"operation": "write", "path": filepath.Join(dir, name), "content": "x",
		}); err != nil {
			t.Fatalf("setup write: %v", err)
		}
	}

	result, err := fh.Execute(context.Background(), nil, map[string]interface{}{
		"operation":  "list",
		"parameters": map[string]interface{}{"directory": dir},
	})
	if err != nil {
		t.Fatalf("Execute list: %v", err)
	}
	if result.Output["total_files"] != 2 {
		t.Fatalf("expected 2 files, got %v", result.Output["total_files"])
	}
}

func TestFileHandler_MissingOperation(t *testing.T) {
	fh := NewFileHandler()
	_, err := fh.Execute(context.Background(), nil, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for missing operation")
	}
}
