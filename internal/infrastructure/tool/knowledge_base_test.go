package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/memory"
)

func newKBTool(t *testing.T) (*KnowledgeBaseTool, *memory.Manager, string) {
	t.Helper()
	mem := newTestMemory()
	root := t.TempDir()
	return NewKnowledgeBaseTool(mem, directEgress(), root, testLogger()), mem, root
}

func TestKnowledgeBase_InsertAndList(t *testing.T) {
	kb, mem, _ := newKBTool(t)

	res, err := kb.Execute(context.Background(), map[string]interface{}{
		"action": "insert_fact", "content": "The staging database lives on host db-stage-02.",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || !strings.Contains(res.Output, "Stored fact") {
		t.Fatalf("insert failed: %q", res.Output)
	}

	count, _ := mem.Count(context.Background(), memory.KindDoc)
	if count != 1 {
		t.Errorf("doc count = %d", count)
	}

	listing, _ := kb.Execute(context.Background(), map[string]interface{}{"action": "list_docs"})
	if !strings.Contains(listing.Output, "db-stage-02") {
		t.Errorf("listing missing the fact: %q", listing.Output)
	}
}

func TestKnowledgeBase_IngestFileDocument(t *testing.T) {
	kb, mem, root := newKBTool(t)

	doc := strings.Repeat("First topic paragraph with details.\n\n", 30) +
		strings.Repeat("Second topic paragraph, different details.\n\n", 30)
	os.WriteFile(filepath.Join(root, "handbook.txt"), []byte(doc), 0644)

	res, _ := kb.Execute(context.Background(), map[string]interface{}{
		"action": "ingest_document", "content": "handbook.txt",
	})
	if !res.Success {
		t.Fatalf("ingest failed: %q", res.Output)
	}
	if !strings.Contains(res.Output, "handbook.txt") {
		t.Errorf("ingest report missing source label: %q", res.Output)
	}

	count, _ := mem.Count(context.Background(), memory.KindDoc)
	if count < 2 {
		t.Errorf("document should chunk into multiple entries, got %d", count)
	}
}

func TestKnowledgeBase_ForgetAndReset(t *testing.T) {
	kb, mem, _ := newKBTool(t)

	for _, fact := range []string{
		"favorite editor is helix",
		"deploy window opens friday afternoon",
	} {
		if res, _ := kb.Execute(context.Background(), map[string]interface{}{
			"action": "insert_fact", "content": fact,
		}); !res.Success {
			t.Fatalf("seed insert failed: %q", res.Output)
		}
	}

	res, _ := kb.Execute(context.Background(), map[string]interface{}{
		"action": "forget", "content": "favorite editor is helix",
	})
	if !res.Success {
		t.Fatalf("forget failed: %q", res.Output)
	}

	res, _ = kb.Execute(context.Background(), map[string]interface{}{"action": "reset_all"})
	if !res.Success {
		t.Fatalf("reset failed: %q", res.Output)
	}
	count, _ := mem.Count(context.Background(), memory.KindDoc)
	if count != 0 {
		t.Errorf("reset left %d entries", count)
	}
}

func TestKnowledgeBase_MissingContent(t *testing.T) {
	kb, _, _ := newKBTool(t)
	for _, action := range []string{"insert_fact", "ingest_document", "forget"} {
		res, _ := kb.Execute(context.Background(), map[string]interface{}{"action": action})
		if res.Success {
			t.Errorf("%s without content must fail", action)
		}
	}
}

func TestChunkText(t *testing.T) {
	t.Run("splits on paragraphs", func(t *testing.T) {
		text := "para one.\n\npara two.\n\npara three."
		chunks := chunkText(text, 15)
		if len(chunks) < 2 {
			t.Errorf("expected multiple chunks, got %d", len(chunks))
		}
		for _, c := range chunks {
			if len(c) > 15+2 {
				t.Errorf("chunk exceeds size: %d", len(c))
			}
		}
	})

	t.Run("hard-cuts oversized runs", func(t *testing.T) {
		chunks := chunkText(strings.Repeat("a", 2500), 1000)
		if len(chunks) != 3 {
			t.Errorf("expected 3 chunks, got %d", len(chunks))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if chunks := chunkText("   \n  ", 100); chunks != nil {
			t.Errorf("expected nil, got %v", chunks)
		}
	})
}
