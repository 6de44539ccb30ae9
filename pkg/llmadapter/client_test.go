package llmadapter

import (
	"context"
	"testing"
)

type sqlPlan struct {
	SQL        string `json:"sql"`
	Confidence int    `json:"confidence"`
}

func TestExtractJSON_Bare(t *testing.T) {
	resp := Response{Text: `{"sql":"SELECT 1","confidence":90}`}

	got, err := ExtractJSON[sqlPlan](resp)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if got.SQL != "SELECT 1" || got.Confidence != 90 {
		t.Errorf("got %+v", got)
	}
}

func TestExtractJSON_FencedWithProse(t *testing.T) {
	resp := Response{Text: "Here is the plan:\n```json\n{\"sql\":\"SELECT 2\",\"confidence\":70}\n```\nLet me know if you need changes."}

	got, err := ExtractJSON[sqlPlan](resp)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if got.SQL != "SELECT 2" || got.Confidence != 70 {
		t.Errorf("got %+v", got)
	}
}

func TestExtractJSON_Nested(t *testing.T) {
	resp := Response{Text: `prefix {"sql":"SELECT {1}","confidence":50} suffix`}

	got, err := ExtractJSON[sqlPlan](resp)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if got.SQL != "SELECT {1}" {
		t.Errorf("got %+v", got)
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	resp := Response{Text: "no JSON here at all"}

	if _, err := ExtractJSON[sqlPlan](resp); err == nil {
		t.Fatal("expected error for text with no JSON span")
	}
}

func TestStubClient_ReturnsQueuedResponses(t *testing.T) {
	stub := &StubClient{Responses: []Response{
		{Text: "first"},
		{Text: "second"},
	}}

	r1, err := stub.Complete(context.Background(), Request{Prompt: "a"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if r1.Text != "first" {
		t.Errorf("r1.Text = %q, want %q", r1.Text, "first")
	}

	r2, _ := stub.Complete(context.Background(), Request{Prompt: "b"})
	if r2.Text != "second" {
		t.Errorf("r2.Text = %q, want %q", r2.Text, "second")
	}

	if len(stub.Requests) != 2 {
		t.Fatalf("recorded %d requests, want 2", len(stub.Requests))
	}
}
