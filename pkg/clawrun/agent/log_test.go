package agent

import (
	"testing"
)

func TestLogManager_PersistAndReload(t *testing.T) {
	dir := t.TempDir()

	lm, err := OpenLog(dir, testLogger())
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	lm.Append(NewMessage(RoleUser, "hello"))
	lm.Append(NewMessage(RoleAssistant, "hi there"))
	secret := SystemMessage("stored secret", "call_3")
	secret.Hide = true
	lm.Append(secret)
	if err := lm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lm2, err := OpenLog(dir, testLogger())
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	defer lm2.Close()

	msgs := lm2.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after reload, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("first message: %+v", msgs[0])
	}
	if msgs[2].CallID != "call_3" || !msgs[2].Hide {
		t.Errorf("call id and hide flag must survive reload: %+v", msgs[2])
	}
}

func TestLogManager_LastAndLen(t *testing.T) {
	lm, err := OpenLog(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer lm.Close()

	if _, ok := lm.Last(); ok {
		t.Error("empty log has no last message")
	}
	lm.Append(NewMessage(RoleUser, "one"))
	lm.Append(NewMessage(RoleUser, "two"))
	if lm.Len() != 2 {
		t.Errorf("len = %d, want 2", lm.Len())
	}
	last, ok := lm.Last()
	if !ok || last.Content != "two" {
		t.Errorf("last = %+v", last)
	}
}

func TestLogManager_LockIsReentrantInProcess(t *testing.T) {
	dir := t.TempDir()
	a, err := OpenLog(dir, testLogger())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	b, err := OpenLog(dir, testLogger())
	if err != nil {
		t.Fatalf("the directory lock is re-entrant within the process: %v", err)
	}
	b.Close()
	a.Close()
}

func TestLogManager_AppendAfterCloseIsNoop(t *testing.T) {
	lm, err := OpenLog(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	lm.Close()
	lm.Append(NewMessage(RoleUser, "lost"))
	if lm.Len() != 0 {
		t.Errorf("appends after close are dropped, got %d messages", lm.Len())
	}
}
