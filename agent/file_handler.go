package agent

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// FileHandler is the file_handler built-in: read/write/delete/copy/
// move/list/info/search/compress/extract, grounded on original_source's
// file_handler.py. Path scoping/normalization is the caller's
// responsibility per spec §4.2; this agent operates on whatever path it
// is given.
type FileHandler struct {
	maxFileSize int64
}

func NewFileHandler() *FileHandler {
	return &FileHandler{maxFileSize: 10 * 1024 * 1024}
}

func (f *FileHandler) Execute(ctx context.Context, cfg map[string]interface{}, input map[string]interface{}) (Result, error) {
	started := time.Now()

	maxSize := f.maxFileSize
	if v, ok := cfg["max_file_size"]; ok {
		if n, ok := toFloat(v); ok {
			maxSize = int64(n)
		}
	}

	operation, _ := input["operation"].(string)
	if operation == "" {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "no operation specified"}
	}
	path, _ := input["path"].(string)
	content := input["content"]
	parameters, _ := input["parameters"].(map[string]interface{})
	if parameters == nil {
		parameters = map[string]interface{}{}
	}

	requiresPath := map[string]bool{"read": true, "write": true, "delete": true, "copy": true, "move": true}
	if requiresPath[operation] && path == "" {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "path is required for this operation"}
	}

	var output map[string]interface{}
	var opErr error

	switch operation {
	case "read":
		output, opErr = readFile(path, parameters, maxSize)
	case "write":
		output, opErr = writeFile(path, content, parameters)
	case "delete":
		output, opErr = deleteFile(path)
	case "copy":
		dest, _ := parameters["destination"].(string)
		output, opErr = copyFile(path, dest)
	case "move":
		dest, _ := parameters["destination"].(string)
		output, opErr = moveFile(path, dest)
	case "list":
		dir, _ := parameters["directory"].(string)
		if dir == "" {
			dir = "."
		}
		output, opErr = listFiles(dir, parameters)
	case "info":
		output, opErr = fileInfo(path)
	case "search":
		dir, _ := parameters["directory"].(string)
		if dir == "" {
			dir = "."
		}
		output, opErr = searchFiles(dir, parameters)
	case "compress":
		filesRaw, _ := parameters["files"].([]interface{})
		output, opErr = compressFiles(toStringSlice(filesRaw), parameters)
	case "extract":
		output, opErr = extractArchive(path, parameters)
	default:
		return Result{}, &Error{Kind: KindInvalidInput, Message: "unsupported operation: " + operation}
	}

	if opErr != nil {
		return Result{
			Output:    map[string]interface{}{"error": opErr.Error()},
			Variables: map[string]interface{}{"operation_success": false, "error_message": opErr.Error()},
			Metadata:  newMetadata(started),
		}, nil
	}

	filesProcessed := 1
	if n, ok := output["files_processed"]; ok {
		if fi, ok := n.(int); ok {
			filesProcessed = fi
		}
	}

	return Result{
		Output: output,
		Variables: map[string]interface{}{
			"operation_success": true,
			"files_processed":   filesProcessed,
			"operation_type":    operation,
		},
		Metadata: newMetadata(started),
	}, nil
}

func readFile(path string, params map[string]interface{}, maxSize int64) (map[string]interface{}, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (max: %d)", info.Size(), maxSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(raw)

	format, _ := params["format"].(string)
	if format == "" || format == "auto" {
		format = detectFormat(path, content)
	}

	parsed := parseContent(content, format)
	mimeType := mime.TypeByExtension(filepath.Ext(path))

	return map[string]interface{}{
		"file_path":   path,
		"file_size":   info.Size(),
		"format":      format,
		"content":     parsed,
		"raw_content": content,
		"mime_type":   mimeType,
	}, nil
}

func writeFile(path string, content interface{}, params map[string]interface{}) (map[string]interface{}, error) {
	format, _ := params["format"].(string)
	createDirs := true
	if v, ok := params["create_dirs"].(bool); ok {
		createDirs = v
	}

	if createDirs {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}

	var contentStr string
	switch format {
	case "json":
		b, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return nil, err
		}
		contentStr = string(b)
	case "csv":
		rows, err := toRows(content)
		if err != nil {
			return nil, err
		}
		contentStr = rowsToCSV(rows)
	default:
		contentStr = fmt.Sprint(content)
	}

	if err := os.WriteFile(path, []byte(contentStr), 0o644); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"file_path":      path,
		"bytes_written":  len(contentStr),
		"format":         format,
		"created":        true,
	}, nil
}

func deleteFile(path string) (map[string]interface{}, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if err := os.Remove(path); err != nil {
		return nil, err
	}
	return map[string]interface{}{"file_path": path, "deleted": true}, nil
}

func copyFile(source, destination string) (map[string]interface{}, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("source file not found: %s", source)
	}
	if dir := filepath.Dir(destination); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(destination, raw, 0o644); err != nil {
		return nil, err
	}
	return map[string]interface{}{"source_path": source, "destination_path": destination, "copied": true}, nil
}

func moveFile(source, destination string) (map[string]interface{}, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("source file not found: %s", source)
	}
	if dir := filepath.Dir(destination); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.Rename(source, destination); err != nil {
		return nil, err
	}
	return map[string]interface{}{"source_path": source, "destination_path": destination, "moved": true}, nil
}

func listFiles(directory string, params map[string]interface{}) (map[string]interface{}, error) {
	if _, err := os.Stat(directory); err != nil {
		return nil, fmt.Errorf("directory not found: %s", directory)
	}
	recursive, _ := params["recursive"].(bool)
	pattern, _ := params["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}
	includeHidden, _ := params["include_hidden"].(bool)

	var files []map[string]interface{}
	var dirs []string

	if recursive {
		_ = filepath.Walk(directory, func(p string, fi os.FileInfo, err error) error {
			if err != nil || p == directory {
				return nil
			}
			name := fi.Name()
			if !includeHidden && strings.HasPrefix(name, ".") {
				if fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if fi.IsDir() {
				return nil
			}
			if matchesPattern(name, pattern) {
				if info, err := fileInfo(p); err == nil {
					files = append(files, info)
				}
			}
			return nil
		})
	} else {
		entries, err := os.ReadDir(directory)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !includeHidden && strings.HasPrefix(e.Name(), ".") {
				continue
			}
			itemPath := filepath.Join(directory, e.Name())
			if e.IsDir() {
				dirs = append(dirs, e.Name())
			} else if matchesPattern(e.Name(), pattern) {
				if info, err := fileInfo(itemPath); err == nil {
					files = append(files, info)
				}
			}
		}
	}

	return map[string]interface{}{
		"directory":          directory,
		"files":              files,
		"directories":        dirs,
		"total_files":        len(files),
		"total_directories":  len(dirs),
	}, nil
}

func fileInfo(path string) (map[string]interface{}, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	return map[string]interface{}{
		"path":          path,
		"name":          filepath.Base(path),
		"size":          info.Size(),
		"modified":      info.ModTime().Format(time.RFC3339),
		"is_file":       !info.IsDir(),
		"is_directory":  info.IsDir(),
		"mime_type":     mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

func searchFiles(directory string, params map[string]interface{}) (map[string]interface{}, error) {
	pattern, _ := params["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}
	contentSearch, _ := params["content_search"].(string)
	fileTypes := toStringSlice(params["file_types"])
	minSize, _ := toFloat(params["min_size"])
	maxSize := float64(1 << 62)
	if v, ok := toFloat(params["max_size"]); ok && params["max_size"] != nil {
		maxSize = v
	}

	var matches []map[string]interface{}
	_ = filepath.Walk(directory, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		if !matchesPattern(fi.Name(), pattern) {
			return nil
		}
		if len(fileTypes) > 0 {
			ext := strings.ToLower(filepath.Ext(fi.Name()))
			found := false
			for _, t := range fileTypes {
				if strings.ToLower(t) == ext {
					found = true
					break
				}
			}
			if !found {
				return nil
			}
		}
		size := float64(fi.Size())
		if size < minSize || size > maxSize {
			return nil
		}
		if contentSearch != "" {
			raw, err := os.ReadFile(p)
			if err != nil || !strings.Contains(strings.ToLower(string(raw)), strings.ToLower(contentSearch)) {
				return nil
			}
		}
		if info, err := fileInfo(p); err == nil {
			matches = append(matches, info)
		}
		return nil
	})

	return map[string]interface{}{
		"directory":        directory,
		"search_criteria":  params,
		"matching_files":   matches,
		"total_matches":    len(matches),
	}, nil
}

func compressFiles(files []string, params map[string]interface{}) (map[string]interface{}, error) {
	archivePath, _ := params["archive_path"].(string)
	if archivePath == "" {
		archivePath = "archive.zip"
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Close() }()

	zw := zip.NewWriter(out)
	for _, fp := range files {
		if _, err := os.Stat(fp); err != nil {
			continue
		}
		w, err := zw.Create(filepath.Base(fp))
		if err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(fp)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"archive_path":      archivePath,
		"files_compressed":  len(files),
		"compression_type":  "zip",
		"files_processed":   len(files),
	}, nil
}

func extractArchive(archivePath string, params map[string]interface{}) (map[string]interface{}, error) {
	extractTo, _ := params["extract_to"].(string)
	if extractTo == "" {
		extractTo = "./extracted"
	}
	if err := os.MkdirAll(extractTo, 0o755); err != nil {
		return nil, err
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var extracted []string
	for _, f := range r.File {
		dest := filepath.Join(extractTo, f.Name)
		if f.FileInfo().IsDir() {
			_ = os.MkdirAll(dest, 0o755)
			continue
		}
		_ = os.MkdirAll(filepath.Dir(dest), 0o755)
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		out, err := os.Create(dest)
		if err != nil {
			_ = rc.Close()
			return nil, err
		}
		_, copyErr := io.Copy(out, rc)
		_ = rc.Close()
		_ = out.Close()
		if copyErr != nil {
			return nil, copyErr
		}
		extracted = append(extracted, f.Name)
	}

	return map[string]interface{}{
		"archive_path":     archivePath,
		"extract_to":       extractTo,
		"extracted_files":  extracted,
		"total_files":      len(extracted),
		"files_processed":  len(extracted),
	}, nil
}

func detectFormat(path, content string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	case ".txt", ".md":
		return "text"
	case ".yaml", ".yml":
		return "yaml"
	case ".xml":
		return "xml"
	}

	var probe interface{}
	if json.Unmarshal([]byte(content), &probe) == nil {
		return "json"
	}
	if strings.Contains(content, ",") && strings.Contains(content, "\n") {
		return "csv"
	}
	return "text"
}

func parseContent(content, format string) interface{} {
	switch format {
	case "json":
		var v interface{}
		if err := json.Unmarshal([]byte(content), &v); err == nil {
			return v
		}
		return content
	case "csv":
		r := csv.NewReader(strings.NewReader(content))
		records, err := r.ReadAll()
		if err != nil || len(records) == 0 {
			return content
		}
		header := records[0]
		rows := make([]map[string]interface{}, 0, len(records)-1)
		for _, rec := range records[1:] {
			row := make(map[string]interface{}, len(header))
			for i, h := range header {
				if i < len(rec) {
					row[h] = rec[i]
				}
			}
			rows = append(rows, row)
		}
		return rows
	case "yaml":
		var v interface{}
		if err := yaml.Unmarshal([]byte(content), &v); err == nil {
			return v
		}
		return content
	default:
		return content
	}
}

func matchesPattern(name, pattern string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
