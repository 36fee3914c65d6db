package tool

import (
	"context"
	"strings"
	"testing"
)

func TestExecute_RunsScriptWithBanner(t *testing.T) {
	runner := &fakeRunner{result: &ScriptResult{ExitCode: 0, Output: "42\n"}}
	et := NewExecuteTool(runner, testLogger())

	res, err := et.Execute(context.Background(), map[string]interface{}{
		"filename": "calc.py",
		"content":  "print(42)",
		"args":     []interface{}{"--fast"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Output)
	}
	if !strings.HasPrefix(res.Output, "--- EXECUTION RESULT ---\nEXIT CODE: 0\nSTDOUT/STDERR:\n") {
		t.Errorf("banner format wrong: %q", res.Output)
	}
	if res.Metadata["exit_code"] != 0 {
		t.Errorf("exit_code metadata = %v", res.Metadata["exit_code"])
	}
	if len(runner.specs) != 1 || runner.specs[0].Args[0] != "--fast" {
		t.Error("spec not forwarded to the runner")
	}
}

func TestExecute_NonzeroExitStillSucceeds(t *testing.T) {
	runner := &fakeRunner{result: &ScriptResult{ExitCode: 2, Output: "Traceback..."}}
	et := NewExecuteTool(runner, testLogger())

	res, _ := et.Execute(context.Background(), map[string]interface{}{
		"filename": "bad.py", "content": "raise ValueError()",
	})
	if !res.Success {
		t.Error("nonzero exit is the dispatcher's business, not a tool failure")
	}
	if !strings.Contains(res.Output, "EXIT CODE: 2") {
		t.Errorf("exit code missing from banner: %q", res.Output)
	}
}

func TestExecute_ExtensionWhitelist(t *testing.T) {
	et := NewExecuteTool(&fakeRunner{}, testLogger())

	for _, filename := range []string{"tool.rb", "run.exe", "noext"} {
		res, _ := et.Execute(context.Background(), map[string]interface{}{
			"filename": filename, "content": "x",
		})
		if res.Success {
			t.Errorf("%s should be rejected", filename)
		}
	}

	for _, filename := range []string{"a.py", "b.sh", "c.js"} {
		res, _ := et.Execute(context.Background(), map[string]interface{}{
			"filename": filename, "content": "content for " + filename,
		})
		if !res.Success {
			t.Errorf("%s should be allowed: %q", filename, res.Output)
		}
	}
}

func TestExecute_ForbiddenImportGuard(t *testing.T) {
	runner := &fakeRunner{}
	et := NewExecuteTool(runner, testLogger())

	res, _ := et.Execute(context.Background(), map[string]interface{}{
		"filename": "scrape.py",
		"content":  "from duckduckgo_search import DDGS\nDDGS().text('query')",
	})
	if res.Success {
		t.Fatal("forbidden import must be blocked")
	}
	if !strings.Contains(res.Output, "web_search") {
		t.Errorf("block message should point at the native tool: %q", res.Output)
	}
	if len(runner.specs) != 0 {
		t.Error("blocked script must not reach the sandbox")
	}

	// .sh scripts are not scanned for python imports
	res, _ = et.Execute(context.Background(), map[string]interface{}{
		"filename": "s.sh", "content": "echo duckduckgo_search",
	})
	if !res.Success {
		t.Error("import guard applies to python only")
	}
}

func TestExecute_StubbornnessGuard(t *testing.T) {
	et := NewExecuteTool(&fakeRunner{}, testLogger())
	args := map[string]interface{}{"filename": "loop.py", "content": "print('same')"}

	for i := 0; i < 2; i++ {
		res, _ := et.Execute(context.Background(), args)
		if !res.Success {
			t.Fatalf("run %d should pass: %q", i+1, res.Output)
		}
	}
	res, _ := et.Execute(context.Background(), args)
	if res.Success {
		t.Fatal("third identical submission must be refused")
	}
	if !strings.Contains(res.Output, "Change the code") {
		t.Errorf("refusal should demand a change: %q", res.Output)
	}

	// different content resets the counter
	res, _ = et.Execute(context.Background(), map[string]interface{}{
		"filename": "loop.py", "content": "print('different')",
	})
	if !res.Success {
		t.Error("changed content should run again")
	}
}

func TestExecute_MissingParams(t *testing.T) {
	et := NewExecuteTool(&fakeRunner{}, testLogger())

	res, _ := et.Execute(context.Background(), map[string]interface{}{"content": "x"})
	if res.Success {
		t.Error("missing filename must fail")
	}
	res, _ = et.Execute(context.Background(), map[string]interface{}{"filename": "a.py"})
	if res.Success {
		t.Error("missing content must fail")
	}
}

func TestExecute_TimeoutAnnotated(t *testing.T) {
	runner := &fakeRunner{result: &ScriptResult{ExitCode: -1, Output: "partial", TimedOut: true}}
	et := NewExecuteTool(runner, testLogger())

	res, _ := et.Execute(context.Background(), map[string]interface{}{
		"filename": "slow.py", "content": "while True: pass",
	})
	if !strings.Contains(res.Output, "execution timeout") {
		t.Errorf("timeout note missing: %q", res.Output)
	}
}
