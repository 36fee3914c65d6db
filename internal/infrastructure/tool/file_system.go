package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

const (
	fsReadCap      = 150 * 1024      // file reads above this are truncated
	fsDownloadCap  = 50 * 1024 * 1024 // hard ceiling for downloads
	fsChunkDefault = 8000
	fsSearchCap    = 100 // max matching lines reported
)

var urlRe = regexp.MustCompile(`^https?://`)

// FileSystemTool is the unified sandbox filesystem surface. Every path is
// jailed under the workspace root; traversal, absolute paths and symlinks
// that leave the root are rejected with a security error.
type FileSystemTool struct {
	root   string
	egress *Egress
	logger *zap.Logger
}

func NewFileSystemTool(root string, egress *Egress, logger *zap.Logger) *FileSystemTool {
	return &FileSystemTool{
		root:   root,
		egress: egress,
		logger: logger.With(zap.String("tool", "file_system")),
	}
}

func (t *FileSystemTool) Name() string          { return "file_system" }
func (t *FileSystemTool) Kind() domaintool.Kind { return domaintool.KindMutate }

// Mutates reports whether a call changes workspace state. Read-style
// operations do not, so they leave the redundancy ledger intact.
func (t *FileSystemTool) Mutates(args map[string]interface{}) bool {
	switch strArg(args, "operation") {
	case "write", "replace", "download", "copy", "rename", "move", "delete":
		return true
	}
	return false
}

func (t *FileSystemTool) Description() string {
	return "Manage files in the sandbox workspace: read, write, edit, search, list, download, copy, rename, move or delete."
}

func (t *FileSystemTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type": "string",
				"enum": []string{"read", "read_chunked", "inspect", "search", "list_files", "write", "replace", "download", "copy", "rename", "move", "delete"},
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Target path relative to the sandbox workspace.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write, the search pattern, or the text to replace.",
			},
			"replace_with": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text for the 'replace' operation.",
			},
			"destination": map[string]interface{}{
				"type":        "string",
				"description": "Destination path for copy/rename/move.",
			},
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Source URL for the 'download' operation.",
			},
			"page": map[string]interface{}{
				"type":        "integer",
				"description": "1-based page number for 'read_chunked'.",
			},
			"chunk_size": map[string]interface{}{
				"type":        "integer",
				"description": "Characters per page for 'read_chunked' (default 8000).",
			},
		},
		"required": []string{"operation", "path"},
	}
}

// resolve jails a model-supplied path under the workspace root. Paths
// that escape the root lexically or through a symlink are rejected.
func (t *FileSystemTool) resolve(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	full := trimmed
	if !filepath.IsAbs(full) {
		full = filepath.Join(t.root, full)
	}
	full = filepath.Clean(full)

	root := filepath.Clean(t.root)
	if realRoot, err := filepath.EvalSymlinks(root); err == nil {
		root = realRoot
	}
	real := resolveExisting(full)
	if real != root && !strings.HasPrefix(real, root+string(filepath.Separator)) {
		return "", fmt.Errorf("Security Error: Path '%s' attempts to access outside sandbox", path)
	}
	return real, nil
}

// resolveExisting follows symlinks along the longest existing prefix of
// full and re-attaches the not-yet-created remainder.
func resolveExisting(full string) string {
	p := full
	var suffix []string
	for {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved
		}
		parent := filepath.Dir(p)
		if parent == p {
			return full
		}
		suffix = append(suffix, filepath.Base(p))
		p = parent
	}
}

func (t *FileSystemTool) rel(full string) string {
	r, err := filepath.Rel(t.root, full)
	if err != nil {
		return full
	}
	return r
}

func (t *FileSystemTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	op := strArg(args, "operation")
	path := strArg(args, "path")
	if path == "" {
		return fail("Error: 'path' parameter is required")
	}

	// models sometimes put the URL where the path goes
	if urlRe.MatchString(path) && op != "download" {
		args["url"] = path
		args["path"] = filepath.Base(path)
		args["operation"] = "download"
		op = "download"
	}

	switch op {
	case "read":
		return t.read(path)
	case "read_chunked":
		return t.readChunked(path, intArg(args, "page", 1), intArg(args, "chunk_size", fsChunkDefault))
	case "inspect":
		return t.inspect(path)
	case "search":
		return t.search(path, strArg(args, "content"))
	case "list_files":
		return t.listFiles(path)
	case "write":
		return t.write(path, strArg(args, "content"))
	case "replace":
		return t.replace(path, strArg(args, "content"), strArg(args, "replace_with"))
	case "download":
		return t.download(ctx, strArg(args, "url"), strArg(args, "path"))
	case "copy":
		return t.copy(path, strArg(args, "destination"))
	case "rename", "move":
		return t.move(path, strArg(args, "destination"))
	case "delete":
		return t.delete(path)
	default:
		return fail("Error: unknown operation '%s'", op)
	}
}

func (t *FileSystemTool) read(path string) (*domaintool.Result, error) {
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	info, err := os.Stat(full)
	if err != nil {
		return fail("Error: file not found: %s", path)
	}
	if info.IsDir() {
		return t.listFiles(path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return fail("Error: cannot read %s: %v", path, err)
	}
	if len(data) > fsReadCap {
		pages := (len(data) + fsChunkDefault - 1) / fsChunkDefault
		return ok(fmt.Sprintf("%s\n...[TRUNCATED: file is %d bytes. Use operation='read_chunked' with page=1..%d to read the rest.]",
			string(data[:fsReadCap]), len(data), pages))
	}
	return ok(string(data))
}

func (t *FileSystemTool) readChunked(path string, page, chunkSize int) (*domaintool.Result, error) {
	if page < 1 {
		page = 1
	}
	if chunkSize < 1 {
		chunkSize = fsChunkDefault
	}
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return fail("Error: file not found: %s", path)
	}

	content := string(data)
	pages := (len(content) + chunkSize - 1) / chunkSize
	if pages == 0 {
		pages = 1
	}
	if page > pages {
		return fail("Error: page %d out of range, file has %d pages", page, pages)
	}
	start := (page - 1) * chunkSize
	end := start + chunkSize
	if end > len(content) {
		end = len(content)
	}
	return ok(fmt.Sprintf("[Page %d/%d of %s]\n%s", page, pages, path, content[start:end]))
}

func (t *FileSystemTool) inspect(path string) (*domaintool.Result, error) {
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	info, err := os.Stat(full)
	if err != nil {
		return fail("Error: path not found: %s", path)
	}
	if info.IsDir() {
		return t.listFiles(path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return fail("Error: cannot read %s: %v", path, err)
	}
	lines := strings.Split(string(data), "\n")
	head := lines
	if len(head) > 20 {
		head = head[:20]
	}
	return ok(fmt.Sprintf("File: %s\nSize: %d bytes, %d lines\n--- First %d lines ---\n%s",
		path, info.Size(), len(lines), len(head), strings.Join(head, "\n")))
}

func (t *FileSystemTool) search(path, pattern string) (*domaintool.Result, error) {
	if pattern == "" {
		return fail("Error: 'content' parameter (the search pattern) is required for search")
	}
	root, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	needle := strings.ToLower(pattern)

	var hits []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || len(hits) >= fsSearchCap {
			return err
		}
		data, rerr := os.ReadFile(p)
		if rerr != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(strings.ToLower(line), needle) {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", t.rel(p), i+1, strings.TrimSpace(truncate(line, 300))))
				if len(hits) >= fsSearchCap {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return fail("Error: search failed under %s: %v", path, err)
	}
	if len(hits) == 0 {
		return ok(fmt.Sprintf("No matches for '%s' under %s.", pattern, path))
	}
	return ok(fmt.Sprintf("Found %d matches for '%s':\n%s", len(hits), pattern, strings.Join(hits, "\n")))
}

func (t *FileSystemTool) listFiles(path string) (*domaintool.Result, error) {
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return fail("Error: cannot list %s: %v", path, err)
	}
	if len(entries) == 0 {
		return ok(fmt.Sprintf("Directory %s is empty.", path))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var lines []string
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, fmt.Sprintf("[DIR]  %s/", e.Name()))
			continue
		}
		info, ierr := e.Info()
		size := int64(0)
		if ierr == nil {
			size = info.Size()
		}
		lines = append(lines, fmt.Sprintf("[FILE] %s (%d bytes)", e.Name(), size))
	}
	return ok(strings.Join(lines, "\n"))
}

func (t *FileSystemTool) write(path, content string) (*domaintool.Result, error) {
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fail("Error: cannot create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fail("Error: cannot write %s: %v", path, err)
	}
	t.logger.Info("File written", zap.String("path", path), zap.Int("bytes", len(content)))
	return ok(fmt.Sprintf("Wrote %d bytes to %s.", len(content), path))
}

// replace swaps old text for new. Exact match first; when that misses,
// a whitespace-tolerant match catches model transcription drift.
func (t *FileSystemTool) replace(path, old, new string) (*domaintool.Result, error) {
	if old == "" {
		return fail("Error: 'content' parameter (the text to replace) is required for replace")
	}
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return fail("Error: file not found: %s", path)
	}
	text := string(data)

	if strings.Contains(text, old) {
		updated := strings.Replace(text, old, new, 1)
		if err := os.WriteFile(full, []byte(updated), 0644); err != nil {
			return fail("Error: cannot write %s: %v", path, err)
		}
		return ok(fmt.Sprintf("Replaced 1 occurrence in %s.", path))
	}

	fuzzy, err := fuzzyPattern(old)
	if err == nil {
		if loc := fuzzy.FindStringIndex(text); loc != nil {
			updated := text[:loc[0]] + new + text[loc[1]:]
			if err := os.WriteFile(full, []byte(updated), 0644); err != nil {
				return fail("Error: cannot write %s: %v", path, err)
			}
			return ok(fmt.Sprintf("Replaced 1 occurrence in %s (whitespace-tolerant match).", path))
		}
	}
	return fail("Error: the text to replace was not found in %s. Read the file first and copy the exact text.", path)
}

// fuzzyPattern turns literal text into a regex where any whitespace run
// matches any whitespace run.
func fuzzyPattern(literal string) (*regexp.Regexp, error) {
	parts := strings.Fields(literal)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile(strings.Join(parts, `\s+`))
}

func (t *FileSystemTool) download(ctx context.Context, rawURL, path string) (*domaintool.Result, error) {
	if rawURL == "" {
		return fail("Error: 'url' parameter is required for download")
	}
	if !urlRe.MatchString(rawURL) {
		return fail("Error: only http(s) URLs can be downloaded")
	}
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fail("Error: cannot create parent directory for %s: %v", path, err)
	}

	var lastStatus int
	for attempt := 0; attempt < 3; attempt++ {
		client, err := t.egress.AnonClient()
		if err != nil {
			return fail("Error: egress unavailable: %v", err)
		}
		req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
		if err != nil {
			return fail("Error: bad URL: %v", err)
		}
		req.Header.Set("User-Agent", browserUA)

		resp, err := client.Do(req)
		if err != nil {
			t.egress.RotateIdentity()
			continue
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable:
			resp.Body.Close()
			lastStatus = resp.StatusCode
			t.logger.Warn("Download blocked, rotating identity",
				zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
			t.egress.RotateIdentity()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fail("Error: download failed with HTTP %d", resp.StatusCode)
		}

		out, err := os.Create(full)
		if err != nil {
			resp.Body.Close()
			return fail("Error: cannot create %s: %v", path, err)
		}
		written, err := io.Copy(out, io.LimitReader(resp.Body, fsDownloadCap+1))
		out.Close()
		resp.Body.Close()
		if err != nil {
			os.Remove(full)
			return fail("Error: download interrupted: %v", err)
		}
		if written > fsDownloadCap {
			os.Remove(full)
			return fail("Error: file exceeds the %d MB download limit", fsDownloadCap/(1024*1024))
		}
		return ok(fmt.Sprintf("Downloaded %d bytes to %s.", written, path))
	}
	if lastStatus != 0 {
		return fail("Error: download blocked after 3 identities (last HTTP %d)", lastStatus)
	}
	return fail("Error: download failed after 3 attempts")
}

func (t *FileSystemTool) copy(path, dest string) (*domaintool.Result, error) {
	if dest == "" {
		return fail("Error: 'destination' parameter is required for copy")
	}
	src, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	dst, rerr := t.resolve(dest)
	if rerr != nil {
		return fail("%s", rerr)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fail("Error: file not found: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fail("Error: cannot create parent directory for %s: %v", dest, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fail("Error: cannot write %s: %v", dest, err)
	}
	return ok(fmt.Sprintf("Copied %s to %s.", path, dest))
}

func (t *FileSystemTool) move(path, dest string) (*domaintool.Result, error) {
	if dest == "" {
		return fail("Error: 'destination' parameter is required for rename/move")
	}
	src, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	dst, rerr := t.resolve(dest)
	if rerr != nil {
		return fail("%s", rerr)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fail("Error: cannot create parent directory for %s: %v", dest, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fail("Error: cannot move %s: %v", path, err)
	}
	return ok(fmt.Sprintf("Moved %s to %s.", path, dest))
}

func (t *FileSystemTool) delete(path string) (*domaintool.Result, error) {
	full, rerr := t.resolve(path)
	if rerr != nil {
		return fail("%s", rerr)
	}
	root := filepath.Clean(t.root)
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	if full == root {
		return fail("Error: refusing to delete the workspace root")
	}
	if _, err := os.Stat(full); err != nil {
		return fail("Error: path not found: %s", path)
	}
	if err := os.RemoveAll(full); err != nil {
		return fail("Error: cannot delete %s: %v", path, err)
	}
	return ok(fmt.Sprintf("Deleted %s.", path))
}

const browserUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
