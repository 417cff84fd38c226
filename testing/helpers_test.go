package testing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/prompta"
)

func TestContentBuilder_ProseAndFences(t *testing.T) {
	content := NewContentBuilder().
		Text("Here is the query.").
		SQL("SELECT 1").
		Fence("", "raw").
		Build()

	blocks := prompta.ParseBlocks(content)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Type != prompta.BlockText || blocks[0].Content != "Here is the query." {
		t.Errorf("unexpected first block %+v", blocks[0])
	}
	if blocks[1].Type != prompta.BlockSQL || blocks[1].Content != "SELECT 1" {
		t.Errorf("unexpected second block %+v", blocks[1])
	}
	if blocks[2].Type != prompta.BlockCode || blocks[2].Content != "raw" {
		t.Errorf("unexpected third block %+v", blocks[2])
	}
}

func TestContentBuilder_Completion(t *testing.T) {
	completion := NewContentBuilder().Text("hello").Completion("gpt-4")

	if completion.Model != "gpt-4" {
		t.Errorf("expected model gpt-4, got %q", completion.Model)
	}
	if len(completion.Choices) != 1 || completion.Choices[0].Message.Content != "hello" {
		t.Errorf("unexpected choices %+v", completion.Choices)
	}
}

func TestSequencedTransport_ReturnsInOrder(t *testing.T) {
	transport := NewSequencedTransport("first", "second", "third")
	ctx := context.Background()

	for i, want := range []string{"first", "second", "third"} {
		completion, err := transport.Complete(ctx, prompta.CompletionRequest{})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if got := completion.Choices[0].Message.Content; got != want {
			t.Errorf("call %d: expected %q, got %q", i, want, got)
		}
	}

	if transport.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", transport.CallCount())
	}
}

func TestSequencedTransport_RepeatsLastContent(t *testing.T) {
	transport := NewSequencedTransport("only")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		completion, err := transport.Complete(ctx, prompta.CompletionRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if completion.Choices[0].Message.Content != "only" {
			t.Errorf("expected 'only', got %q", completion.Choices[0].Message.Content)
		}
	}
}

func TestSequencedTransport_Reset(t *testing.T) {
	transport := NewSequencedTransport("a", "b")
	ctx := context.Background()

	_, _ = transport.Complete(ctx, prompta.CompletionRequest{})
	_, _ = transport.Complete(ctx, prompta.CompletionRequest{})
	transport.Reset()

	completion, _ := transport.Complete(ctx, prompta.CompletionRequest{})
	if completion.Choices[0].Message.Content != "a" {
		t.Errorf("expected 'a' after reset, got %q", completion.Choices[0].Message.Content)
	}
}

func TestFailingTransport_FailsThenSucceeds(t *testing.T) {
	transport := NewFailingTransport(2).WithContent("ok")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := transport.Complete(ctx, prompta.CompletionRequest{})
		var cerr *prompta.CompletionError
		if !errors.As(err, &cerr) {
			t.Fatalf("call %d: expected *CompletionError, got %v", i, err)
		}
		if cerr.StatusCode != 500 {
			t.Errorf("expected status 500, got %d", cerr.StatusCode)
		}
	}

	completion, err := transport.Complete(ctx, prompta.CompletionRequest{})
	if err != nil {
		t.Fatalf("expected success after failures, got %v", err)
	}
	if completion.Choices[0].Message.Content != "ok" {
		t.Errorf("expected 'ok', got %q", completion.Choices[0].Message.Content)
	}
	if transport.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", transport.CallCount())
	}
}

func TestFailingTransport_WithFailure(t *testing.T) {
	transport := NewFailingTransport(1).WithFailure(prompta.CompletionError{
		Message:    "bad request",
		Type:       "invalid_request_error",
		Code:       "context_length_exceeded",
		StatusCode: 400,
	})

	_, err := transport.Complete(context.Background(), prompta.CompletionRequest{})
	var cerr *prompta.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CompletionError, got %v", err)
	}
	if cerr.Code != "context_length_exceeded" {
		t.Errorf("expected code context_length_exceeded, got %q", cerr.Code)
	}

	transport.Reset()
	if transport.CallCount() != 0 {
		t.Errorf("expected 0 calls after reset, got %d", transport.CallCount())
	}
}

func TestCallRecorder_RecordsCalls(t *testing.T) {
	recorder := NewCallRecorder(prompta.NewMockTransport("hi"))
	ctx := context.Background()

	messages := []prompta.Message{{Role: prompta.RoleUser, Content: "hello"}}
	_, err := recorder.Complete(ctx, prompta.CompletionRequest{Model: "m", Messages: messages, Temperature: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the caller's slice must not change the recording
	messages[0].Content = "mutated"

	calls := recorder.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Messages[0].Content != "hello" {
		t.Errorf("expected recorded content 'hello', got %q", calls[0].Messages[0].Content)
	}
	if calls[0].Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", calls[0].Temperature)
	}
}

func TestCallRecorder_LastCallAndReset(t *testing.T) {
	recorder := NewCallRecorder(prompta.NewMockTransport("hi"))
	ctx := context.Background()

	if recorder.LastCall() != nil {
		t.Error("expected nil last call before any calls")
	}

	_, _ = recorder.Complete(ctx, prompta.CompletionRequest{Model: "first"})
	_, _ = recorder.Complete(ctx, prompta.CompletionRequest{Model: "second"})

	if last := recorder.LastCall(); last == nil || last.Model != "second" {
		t.Errorf("expected last call model 'second', got %+v", last)
	}

	recorder.Reset()
	if recorder.CallCount() != 0 {
		t.Errorf("expected 0 calls after reset, got %d", recorder.CallCount())
	}
}

func TestCallRecorder_ConcurrentSafety(t *testing.T) {
	recorder := NewCallRecorder(prompta.NewMockTransport("hi"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = recorder.Complete(ctx, prompta.CompletionRequest{})
		}()
	}
	wg.Wait()

	if recorder.CallCount() != 50 {
		t.Errorf("expected 50 calls, got %d", recorder.CallCount())
	}
}

func TestLatencyTransport_AddsLatency(t *testing.T) {
	transport := NewLatencyTransport(prompta.NewMockTransport("hi"), 20*time.Millisecond)

	start := time.Now()
	_, err := transport.Complete(context.Background(), prompta.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected at least 20ms latency, got %v", elapsed)
	}
}

func TestLatencyTransport_RespectsContextCancellation(t *testing.T) {
	transport := NewLatencyTransport(prompta.NewMockTransport("hi"), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := transport.Complete(ctx, prompta.CompletionRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestUsageAccumulator_Observe(t *testing.T) {
	acc := NewUsageAccumulator()
	result := &prompta.Result{Completion: prompta.MockCompletion("m", "x")}

	_ = acc.Observe(context.Background(), result)
	_ = acc.Observe(context.Background(), result)
	_ = acc.Observe(context.Background(), nil)

	if acc.CallCount() != 2 {
		t.Errorf("expected 2 observed calls, got %d", acc.CallCount())
	}
	if acc.TotalTokens() != 300 {
		t.Errorf("expected 300 total tokens, got %d", acc.TotalTokens())
	}
	if acc.PromptTokens() != 200 || acc.CompletionTokens() != 100 {
		t.Errorf("unexpected split %d/%d", acc.PromptTokens(), acc.CompletionTokens())
	}

	acc.Reset()
	if acc.TotalTokens() != 0 {
		t.Errorf("expected 0 after reset, got %d", acc.TotalTokens())
	}
}
