package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRecall_FindsSeededMemories(t *testing.T) {
	mem := newTestMemory()
	if _, err := mem.Remember(context.Background(), "user prefers tabs over spaces", "auto"); err != nil {
		t.Fatal(err)
	}

	rt := NewRecallTool(mem, testLogger())
	res, err := rt.Execute(context.Background(), map[string]interface{}{"query": "user prefers tabs over spaces"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Output, "tabs over spaces") {
		t.Errorf("recall missed the memory: %q", res.Output)
	}

	res, _ = rt.Execute(context.Background(), map[string]interface{}{})
	if res.Success {
		t.Error("missing query must fail")
	}
}

func TestUpdateProfile(t *testing.T) {
	profile := &fakeProfile{}
	up := NewUpdateProfileTool(profile, testLogger())

	res, _ := up.Execute(context.Background(), map[string]interface{}{
		"category": "preferences", "key": "timezone", "value": "Europe/Berlin",
	})
	if !res.Success || !strings.Contains(res.Output, "Synchronized: preferences.timezone") {
		t.Errorf("unexpected output: %q", res.Output)
	}
	if len(profile.updates) != 1 {
		t.Error("store not called")
	}

	res, _ = up.Execute(context.Background(), map[string]interface{}{"category": "x", "key": "y"})
	if res.Success {
		t.Error("missing value must fail")
	}
}

func TestDeleteProfileKey(t *testing.T) {
	profile := &fakeProfile{}
	dp := NewDeleteProfileKeyTool(profile, testLogger())

	res, _ := dp.Execute(context.Background(), map[string]interface{}{"category": "assets", "key": "car"})
	if !res.Success || !strings.Contains(res.Output, "Removed from Profile") {
		t.Errorf("unexpected output: %q", res.Output)
	}

	res, _ = dp.Execute(context.Background(), map[string]interface{}{"category": "assets"})
	if res.Success {
		t.Error("missing key must fail")
	}
}

func TestLearnSkill(t *testing.T) {
	playbook := &fakePlaybook{}
	ls := NewLearnSkillTool(playbook, testLogger())

	res, _ := ls.Execute(context.Background(), map[string]interface{}{
		"task": "parse csv", "mistake": "assumed comma delimiter", "solution": "sniff the delimiter first",
	})
	if !res.Success {
		t.Fatalf("learn failed: %q", res.Output)
	}
	if len(playbook.lessons) != 1 || playbook.lessons[0] != "parse csv" {
		t.Error("lesson not filed")
	}

	res, _ = ls.Execute(context.Background(), map[string]interface{}{"task": "t", "mistake": "m"})
	if res.Success {
		t.Error("missing solution must fail")
	}
}

func TestScratchpadTool(t *testing.T) {
	pad := newFakePad()
	sp := NewScratchpadTool(pad, testLogger())
	ctx := context.Background()

	sp.Execute(ctx, map[string]interface{}{"action": "set", "key": "plan", "value": "step one"})
	res, _ := sp.Execute(ctx, map[string]interface{}{"action": "get", "key": "plan"})
	if res.Output != "step one" {
		t.Errorf("get = %q", res.Output)
	}

	res, _ = sp.Execute(ctx, map[string]interface{}{"action": "get", "key": "missing"})
	if !strings.Contains(res.Output, "not set") {
		t.Errorf("missing key should read as unset: %q", res.Output)
	}

	sp.Execute(ctx, map[string]interface{}{"action": "set", "key": "alt", "value": "x"})
	res, _ = sp.Execute(ctx, map[string]interface{}{"action": "list"})
	if !strings.Contains(res.Output, "alt") || !strings.Contains(res.Output, "plan") {
		t.Errorf("list incomplete: %q", res.Output)
	}

	sp.Execute(ctx, map[string]interface{}{"action": "clear"})
	res, _ = sp.Execute(ctx, map[string]interface{}{"action": "list"})
	if !strings.Contains(res.Output, "empty") {
		t.Errorf("clear did not empty the pad: %q", res.Output)
	}
}

func TestManageTasks_Lifecycle(t *testing.T) {
	sched := &fakeSched{}
	mt := NewManageTasksTool(sched, testLogger())
	ctx := context.Background()

	res, _ := mt.Execute(ctx, map[string]interface{}{
		"action": "create", "task_name": "morning digest",
		"cron_expression": "interval:3600", "prompt": "summarize overnight logs",
	})
	if !res.Success || !strings.Contains(res.Output, "task_0001") {
		t.Fatalf("create failed: %q", res.Output)
	}

	res, _ = mt.Execute(ctx, map[string]interface{}{"action": "list"})
	if !strings.Contains(res.Output, "morning digest") || !strings.Contains(res.Output, "interval:3600") {
		t.Errorf("list incomplete: %q", res.Output)
	}

	res, _ = mt.Execute(ctx, map[string]interface{}{"action": "stop", "task_identifier": "task_0001"})
	if !res.Success {
		t.Errorf("stop failed: %q", res.Output)
	}

	res, _ = mt.Execute(ctx, map[string]interface{}{"action": "stop", "task_identifier": "task_gone"})
	if res.Success {
		t.Error("stopping an unknown task must fail")
	}

	mt.Execute(ctx, map[string]interface{}{
		"action": "create", "task_name": "a", "cron_expression": "0 * * * *", "prompt": "p",
	})
	res, _ = mt.Execute(ctx, map[string]interface{}{"action": "stop_all"})
	if !strings.Contains(res.Output, "Stopped 1") {
		t.Errorf("stop_all report wrong: %q", res.Output)
	}
}

func TestManageTasks_CreateValidation(t *testing.T) {
	mt := NewManageTasksTool(&fakeSched{}, testLogger())
	res, _ := mt.Execute(context.Background(), map[string]interface{}{
		"action": "create", "task_name": "incomplete",
	})
	if res.Success {
		t.Error("create without schedule and prompt must fail")
	}
}

func TestReplan(t *testing.T) {
	rp := NewReplanTool()
	res, _ := rp.Execute(context.Background(), map[string]interface{}{"reason": "the API is unreachable"})
	if !strings.Contains(res.Output, "Strategy Reset Triggered. Reason: the API is unreachable") {
		t.Errorf("unexpected output: %q", res.Output)
	}

	res, _ = rp.Execute(context.Background(), map[string]interface{}{})
	if res.Success {
		t.Error("missing reason must fail")
	}
}

func TestDreamModeAndSelfPlayTools(t *testing.T) {
	dreamer := &fakeDreamer{dreamOut: "Merged 2 fragments", playOut: "SELF-PLAY ROUND: SUCCESS"}

	dm := NewDreamModeTool(dreamer, testLogger())
	res, _ := dm.Execute(context.Background(), nil)
	if !strings.Contains(res.Output, "Merged 2 fragments") {
		t.Errorf("dream output lost: %q", res.Output)
	}

	sp := NewSelfPlayTool(dreamer, testLogger())
	res, _ = sp.Execute(context.Background(), nil)
	if !strings.Contains(res.Output, "SUCCESS") {
		t.Errorf("self-play output lost: %q", res.Output)
	}

	broken := NewDreamModeTool(&fakeDreamer{err: errors.New("store locked")}, testLogger())
	res, _ = broken.Execute(context.Background(), nil)
	if res.Success {
		t.Error("dreamer errors must surface as failures")
	}
}
