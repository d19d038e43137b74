package event

import "testing"

func TestClassifyKindTable(t *testing.T) {
	c := NewClassifier(nil)
	cases := []struct {
		kind string
		want int
	}{
		{"UserPromptSubmit", PriorityElevated},
		{"Notification", PriorityElevated},
		{"Stop", PriorityElevated},
		{"SubagentStop", PriorityElevated},
		{"ToolUse", PriorityRegular},
		{"PreToolUse", PriorityRegular},
		{"SomethingNobodyRegistered", PriorityRegular},
		{"", PriorityRegular},
	}
	for _, tc := range cases {
		got, _ := c.Classify(tc.kind, nil)
		if got != tc.want {
			t.Fatalf("Classify(%q) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestClassifyConfigOverrides(t *testing.T) {
	c := NewClassifier(map[string]int{"ToolUse": 2, "UserPromptSubmit": 0, "Weird": 99})
	if got, _ := c.Classify("ToolUse", nil); got != 2 {
		t.Fatalf("override tier: %d", got)
	}
	if got, _ := c.Classify("UserPromptSubmit", nil); got != 0 {
		t.Fatalf("override down to regular: %d", got)
	}
	if got, _ := c.Classify("Weird", nil); got != PriorityMax {
		t.Fatalf("expected clamp to %d, got %d", PriorityMax, got)
	}
}

func TestPayloadOverrideOnlyRaises(t *testing.T) {
	c := NewClassifier(nil)

	// hint raises a regular kind
	got, meta := c.Classify("ToolUse", []byte(`{"priority_hint":2}`))
	if got != 2 {
		t.Fatalf("hint should raise: %d", got)
	}
	if meta == nil || meta.Rule != "payload-override" || meta.OverrideTier != 2 {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	// hint never lowers an elevated kind
	got, meta = c.Classify("UserPromptSubmit", []byte(`{"priority_hint":0}`))
	if got != PriorityElevated {
		t.Fatalf("hint must not lower: %d", got)
	}
	if meta == nil || meta.Rule != "kind-table" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	// error field raises to at least elevated
	got, _ = c.Classify("ToolUse", []byte(`{"error":"timeout"}`))
	if got != PriorityElevated {
		t.Fatalf("error should raise: %d", got)
	}
	// empty error string does not
	got, _ = c.Classify("ToolUse", []byte(`{"error":""}`))
	if got != PriorityRegular {
		t.Fatalf("empty error should not raise: %d", got)
	}
}

func TestClassifyMalformedPayload(t *testing.T) {
	c := NewClassifier(nil)
	if got, _ := c.Classify("ToolUse", []byte(`{not json`)); got != PriorityRegular {
		t.Fatalf("malformed payload must not error or raise: %d", got)
	}
}
