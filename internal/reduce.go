package internal

import (
	"context"
	"fmt"
	"strings"
)

// EstimateTokens approximates token count as a fixed deterministic function of
// serialized length. It is intentionally not a real tokenizer: the estimate
// must be reproducible across runs and platforms.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// SplitBlocks splits text into atomic blocks. A transcript entry (a "- ["
// bullet plus its continuation lines) is one block; otherwise paragraphs
// separated by blank lines are blocks. Chunking never splits a block.
func SplitBlocks(text string) []string {
	var blocks []string
	var cur []string

	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case strings.HasPrefix(line, "- ["):
			flush()
			cur = append(cur, line)
		default:
			cur = append(cur, line)
		}
	}
	flush()

	return blocks
}

// SplitChunks packs blocks into ordered chunks bounded by both a character and
// a line budget. A chunk closes before either bound would be exceeded; a block
// larger than the budget becomes a chunk of its own.
func SplitChunks(text string, charBudget, lineBudget int) []string {
	blocks := SplitBlocks(text)

	var chunks []string
	var cur []string
	chars, lines := 0, 0

	for _, b := range blocks {
		bChars := len(b) + 2
		bLines := strings.Count(b, "\n") + 2
		if len(cur) > 0 && (chars+bChars > charBudget || lines+bLines > lineBudget) {
			chunks = append(chunks, strings.Join(cur, "\n\n"))
			cur, chars, lines = nil, 0, 0
		}
		cur = append(cur, b)
		chars += bChars
		lines += bLines
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, "\n\n"))
	}

	return chunks
}

// MergeFunc combines a group of items into one.
type MergeFunc[T any] func(ctx context.Context, group []T) (T, error)

// ReduceMerge folds items down to a single value in repeated passes. Each pass
// groups consecutive items until the next item's estimated cost would meet or
// exceed passBudget, then merges every multi-item group. When grouping
// degenerates to all singletons the pass falls back to naive pairing, which
// guarantees progress.
func ReduceMerge[T any](ctx context.Context, items []T, passBudget int, cost func(T) int, merge MergeFunc[T]) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, fmt.Errorf("nothing to reduce")
	}

	for len(items) > 1 {
		groups := groupByBudget(items, passBudget, cost)
		if len(groups) == len(items) {
			groups = pairUp(items)
		}

		next := make([]T, 0, len(groups))
		for _, g := range groups {
			if len(g) == 1 {
				next = append(next, g[0])
				continue
			}
			merged, err := merge(ctx, g)
			if err != nil {
				return zero, err
			}
			next = append(next, merged)
		}
		items = next
	}

	return items[0], nil
}

func groupByBudget[T any](items []T, budget int, cost func(T) int) [][]T {
	var groups [][]T
	var cur []T
	acc := 0

	for _, it := range items {
		c := cost(it)
		if len(cur) > 0 && acc+c >= budget {
			groups = append(groups, cur)
			cur, acc = nil, 0
		}
		cur = append(cur, it)
		acc += c
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return groups
}

func pairUp[T any](items []T) [][]T {
	var groups [][]T
	for i := 0; i < len(items); i += 2 {
		end := min(i+2, len(items))
		groups = append(groups, items[i:end])
	}
	return groups
}
