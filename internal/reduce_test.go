package internal

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}

func TestSplitBlocksTranscript(t *testing.T) {
	text := "- [user] do the thing\n- [agent] working on it\n  continued line\n- [tool] done\n"
	blocks := SplitBlocks(text)
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3: %q", len(blocks), blocks)
	}
	if !strings.Contains(blocks[1], "continued line") {
		t.Errorf("continuation line split from its entry: %q", blocks[1])
	}
}

func TestSplitBlocksParagraphs(t *testing.T) {
	text := "first paragraph\nstill first\n\nsecond paragraph\n"
	blocks := SplitBlocks(text)
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2: %q", len(blocks), blocks)
	}
}

func TestSplitChunksRespectsBudgets(t *testing.T) {
	var entries []string
	for i := 0; i < 20; i++ {
		entries = append(entries, fmt.Sprintf("- [agent] entry number %02d with some padding text", i))
	}
	text := strings.Join(entries, "\n")

	chunks := SplitChunks(text, 200, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if len(c) > 200+len(entries[0]) {
			t.Errorf("chunk %d grossly over budget: %d chars", i, len(c))
		}
	}

	// Order and content survive chunking.
	joined := strings.Join(chunks, "\n\n")
	for _, e := range entries {
		if !strings.Contains(joined, e) {
			t.Errorf("entry lost: %q", e)
		}
	}
}

func TestSplitChunksOversizedBlock(t *testing.T) {
	big := "- [agent] " + strings.Repeat("word ", 100)
	chunks := SplitChunks(big, 50, 10)
	if len(chunks) != 1 {
		t.Fatalf("oversized block must become one chunk, got %d", len(chunks))
	}
}

func TestReduceMergeSingle(t *testing.T) {
	got, err := ReduceMerge(context.Background(), []int{7}, 10, func(int) int { return 1 },
		func(_ context.Context, g []int) (int, error) {
			t.Fatal("merge called for single item")
			return 0, nil
		})
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}
}

func TestReduceMergeFolds(t *testing.T) {
	sum := func(_ context.Context, g []int) (int, error) {
		total := 0
		for _, n := range g {
			total += n
		}
		return total, nil
	}

	got, err := ReduceMerge(context.Background(), []int{1, 2, 3, 4, 5}, 3,
		func(int) int { return 1 }, sum)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got != 15 {
		t.Errorf("got %d, want 15", got)
	}
}

func TestReduceMergePairingFallback(t *testing.T) {
	// Every item alone exceeds the budget, so grouping degenerates to
	// singletons and the pass must fall back to pairing to make progress.
	calls := 0
	sum := func(_ context.Context, g []int) (int, error) {
		calls++
		total := 0
		for _, n := range g {
			total += n
		}
		return total, nil
	}

	got, err := ReduceMerge(context.Background(), []int{1, 2, 3, 4}, 5,
		func(int) int { return 100 }, sum)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got != 10 {
		t.Errorf("got %d, want 10", got)
	}
	if calls == 0 {
		t.Error("merge never called")
	}
}

func TestReduceMergeEmpty(t *testing.T) {
	_, err := ReduceMerge(context.Background(), []int{}, 10, func(int) int { return 1 },
		func(_ context.Context, g []int) (int, error) { return 0, nil })
	if err == nil {
		t.Fatal("expected error for empty input")
	}
}
