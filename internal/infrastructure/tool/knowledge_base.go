package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/ghostagent/ghost/internal/domain/memory"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

const (
	kbChunkSize   = 1000 // chars per ingested chunk
	kbChunkLimit  = 200  // max chunks per document
	kbListLimit   = 50
	kbForgetTopK  = 3
	kbForgetDist  = 0.5
)

// KnowledgeBaseTool is the explicit long-term store: facts and documents
// the user asked to keep, as opposed to the salience-gated auto memory.
type KnowledgeBaseTool struct {
	mem    *memory.Manager
	egress *Egress
	root   string // workspace root for file ingestion
	logger *zap.Logger
}

func NewKnowledgeBaseTool(mem *memory.Manager, egress *Egress, root string, logger *zap.Logger) *KnowledgeBaseTool {
	return &KnowledgeBaseTool{
		mem:    mem,
		egress: egress,
		root:   root,
		logger: logger.With(zap.String("tool", "knowledge_base")),
	}
}

func (t *KnowledgeBaseTool) Name() string          { return "knowledge_base" }
func (t *KnowledgeBaseTool) Kind() domaintool.Kind { return domaintool.KindMemory }
func (t *KnowledgeBaseTool) Description() string {
	return "Permanent knowledge store: insert facts, ingest documents (file path or URL), forget entries, list or reset."
}

func (t *KnowledgeBaseTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"insert_fact", "ingest_document", "forget", "list_docs", "reset_all"},
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The fact text, the document path/URL, or the description of what to forget.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *KnowledgeBaseTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	action := strArg(args, "action")
	content := strings.TrimSpace(strArg(args, "content"))

	switch action {
	case "insert_fact":
		return t.insertFact(ctx, content)
	case "ingest_document":
		return t.ingestDocument(ctx, content)
	case "forget":
		return t.forget(ctx, content)
	case "list_docs":
		return t.listDocs(ctx)
	case "reset_all":
		return t.resetAll(ctx)
	default:
		return fail("Error: unknown action '%s'", action)
	}
}

func (t *KnowledgeBaseTool) insertFact(ctx context.Context, content string) (*domaintool.Result, error) {
	if content == "" {
		return fail("Error: 'content' parameter is required for insert_fact")
	}
	entry, err := t.mem.Remember(ctx, content, memory.KindDoc)
	if err != nil {
		return fail("Error: store rejected the fact: %v", err)
	}
	return ok(fmt.Sprintf("Stored fact %s in the knowledge base.", entry.ID))
}

func (t *KnowledgeBaseTool) ingestDocument(ctx context.Context, source string) (*domaintool.Result, error) {
	if source == "" {
		return fail("Error: 'content' parameter (the document path or URL) is required")
	}

	text, label, err := t.loadDocument(ctx, source)
	if err != nil {
		return fail("Error: cannot load document: %v", err)
	}

	chunks := chunkText(text, kbChunkSize)
	if len(chunks) > kbChunkLimit {
		chunks = chunks[:kbChunkLimit]
	}
	stored := 0
	for i, chunk := range chunks {
		tagged := fmt.Sprintf("[doc:%s #%d/%d] %s", label, i+1, len(chunks), chunk)
		if _, err := t.mem.Remember(ctx, tagged, memory.KindDoc); err != nil {
			t.logger.Warn("Chunk insert failed", zap.Int("chunk", i), zap.Error(err))
			continue
		}
		stored++
	}
	t.logger.Info("Document ingested",
		zap.String("source", label), zap.Int("chunks", stored))
	return ok(fmt.Sprintf("Ingested '%s': %d chunks stored.", label, stored))
}

func (t *KnowledgeBaseTool) loadDocument(ctx context.Context, source string) (text, label string, err error) {
	if urlRe.MatchString(source) {
		pageURL, perr := url.Parse(source)
		if perr != nil {
			return "", "", perr
		}
		client, cerr := t.egress.AnonClient()
		if cerr != nil {
			return "", "", cerr
		}
		reqCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
		defer cancel()
		req, rerr := http.NewRequestWithContext(reqCtx, "GET", source, nil)
		if rerr != nil {
			return "", "", rerr
		}
		req.Header.Set("User-Agent", browserUA)
		resp, derr := client.Do(req)
		if derr != nil {
			return "", "", derr
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", "", fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		article, aerr := readability.FromReader(io.LimitReader(resp.Body, 5*1024*1024), pageURL)
		if aerr != nil {
			return "", "", aerr
		}
		return article.TextContent, pageURL.Host + pageURL.Path, nil
	}

	full := filepath.Join(t.root, filepath.Clean("/"+source))
	data, rerr := os.ReadFile(full)
	if rerr != nil {
		return "", "", fmt.Errorf("file not found in workspace: %s", source)
	}
	return string(data), filepath.Base(source), nil
}

func (t *KnowledgeBaseTool) forget(ctx context.Context, query string) (*domaintool.Result, error) {
	if query == "" {
		return fail("Error: 'content' parameter (what to forget) is required")
	}
	entries, err := t.mem.Recall(ctx, query, kbForgetTopK, &memory.SearchFilter{
		Kind:        memory.KindDoc,
		MaxDistance: kbForgetDist,
	})
	if err != nil {
		return fail("Error: recall failed: %v", err)
	}
	if len(entries) == 0 {
		return ok(fmt.Sprintf("Nothing in the knowledge base matches '%s'.", query))
	}
	removed := 0
	for _, e := range entries {
		if err := t.mem.Forget(ctx, e.ID); err == nil {
			removed++
		}
	}
	return ok(fmt.Sprintf("Forgot %d entries matching '%s'.", removed, query))
}

func (t *KnowledgeBaseTool) listDocs(ctx context.Context) (*domaintool.Result, error) {
	entries, err := t.mem.ListByKind(ctx, memory.KindDoc, kbListLimit)
	if err != nil {
		return fail("Error: listing failed: %v", err)
	}
	if len(entries) == 0 {
		return ok("The knowledge base is empty.")
	}
	var lines []string
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- [%s] %s", e.ID, truncate(e.Content, 120)))
	}
	return ok(fmt.Sprintf("Knowledge base entries (%d shown):\n%s", len(entries), strings.Join(lines, "\n")))
}

func (t *KnowledgeBaseTool) resetAll(ctx context.Context) (*domaintool.Result, error) {
	removed := 0
	for {
		entries, err := t.mem.ListByKind(ctx, memory.KindDoc, 100)
		if err != nil {
			return fail("Error: reset failed: %v", err)
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if err := t.mem.Forget(ctx, e.ID); err == nil {
				removed++
			}
		}
	}
	t.logger.Info("Knowledge base reset", zap.Int("removed", removed))
	return ok(fmt.Sprintf("Knowledge base reset: %d entries removed.", removed))
}

// chunkText splits on paragraph boundaries where possible, hard-cutting
// runs that exceed the chunk size.
func chunkText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > size {
			chunks = append(chunks, para[:size])
			para = para[size:]
		}
		if current.Len() > 0 && current.Len()+len(para) > size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
