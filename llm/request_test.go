package llm

import "testing"

func TestBuildChatRequest_Options(t *testing.T) {
	req := BuildChatRequest("gpt-4o",
		[]Message{{Role: RoleUser, Parts: []ContentPart{TextPart("hi")}}},
		WithTemperature(0.2),
		WithTopP(0.9),
		WithMaxTokens(128),
		WithStop("END"),
		WithStreamIncludeUsage(true),
		WithExtra("seed", 7),
		WithHeader("X-Customer-Id", "cust_1"),
	)

	if req.Model != "gpt-4o" {
		t.Fatalf("Model=%q", req.Model)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Fatalf("Temperature=%v", req.Temperature)
	}
	if req.TopP == nil || *req.TopP != 0.9 {
		t.Fatalf("TopP=%v", req.TopP)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 128 {
		t.Fatalf("MaxTokens=%v", req.MaxTokens)
	}
	if len(req.Stop) != 1 || req.Stop[0] != "END" {
		t.Fatalf("Stop=%v", req.Stop)
	}
	if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
		t.Fatalf("StreamOptions=%+v", req.StreamOptions)
	}
	if req.Extra["seed"] != 7 {
		t.Fatalf("Extra=%v", req.Extra)
	}
	if req.Transport == nil || req.Transport.Headers.Get("X-Customer-Id") != "cust_1" {
		t.Fatalf("Transport=%+v", req.Transport)
	}
}

func TestBuildChatRequest_ClonesMessages(t *testing.T) {
	msgs := []Message{{
		Role:      RoleAssistant,
		Parts:     []ContentPart{TextPart("a")},
		ToolCalls: []ToolCall{{ID: "call_1", Name: "lookup"}},
	}}

	req := BuildChatRequest("gpt-4o", msgs)
	req.Messages[0].Parts[0].Text = "mutated"
	req.Messages[0].ToolCalls[0].ID = "call_2"

	if msgs[0].Parts[0].Text != "a" {
		t.Fatalf("caller parts mutated: %q", msgs[0].Parts[0].Text)
	}
	if msgs[0].ToolCalls[0].ID != "call_1" {
		t.Fatalf("caller tool calls mutated: %q", msgs[0].ToolCalls[0].ID)
	}
}

func TestChatRequest_CloneIsolation(t *testing.T) {
	req := BuildChatRequest("gpt-4o",
		[]Message{{Role: RoleUser, Parts: []ContentPart{TextPart("hi")}}},
		WithStreamIncludeUsage(false),
		WithHeader("Authorization", "Bearer a"),
	)

	cp := req.Clone()
	cp.StreamOptions.IncludeUsage = true
	cp.Transport.Headers.Set("Authorization", "Bearer b")
	cp.Messages[0].Parts[0].Text = "other"

	if req.StreamOptions.IncludeUsage {
		t.Fatalf("clone shares StreamOptions")
	}
	if got := req.Transport.Headers.Get("Authorization"); got != "Bearer a" {
		t.Fatalf("clone shares headers: %q", got)
	}
	if req.Messages[0].Parts[0].Text != "hi" {
		t.Fatalf("clone shares messages")
	}
}
