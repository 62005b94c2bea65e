package aggregates

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorHelpersClassifyThroughWrapping(t *testing.T) {
	invalid := fmt.Errorf("outer: %w", InvalidState("task.start", "task %s is %s", "t-1", "completed"))
	if !IsInvalidState(invalid) {
		t.Fatalf("IsInvalidState: want=true")
	}
	if IsConcurrencyConflict(invalid) {
		t.Fatalf("IsConcurrencyConflict: want=false for invalid state")
	}
	conflict := ConcurrencyConflict("conversation.save", "conversation", "c-1", 2, 3)
	if CodeOf(conflict) != CodeConflict {
		t.Fatalf("CodeOf: want=%s got=%s", CodeConflict, CodeOf(conflict))
	}
	if want := `conversation.save: conversation "c-1" version mismatch: expected=2 persisted=3 (conflict)`; conflict.Error() != want {
		t.Fatalf("Error(): want=%q got=%q", want, conflict.Error())
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("CodeOf plain error should be empty")
	}
	if Wrap(CodeInternal, "op", nil) != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
}
