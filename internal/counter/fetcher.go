package counter

import (
	"context"

	"github.com/samber/lo"
)

// Fetcher performs one authoritative read of a count from the server
type Fetcher interface {
	Fetch(ctx context.Context) (int, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context) (int, error)

// Fetch calls f(ctx)
func (f FetcherFunc) Fetch(ctx context.Context) (int, error) {
	return f(ctx)
}

// SumUnread adds up per-item unread counts. Negative counts are treated as 0.
func SumUnread[T any](items []T, unread func(T) int) int {
	return lo.SumBy(items, func(item T) int {
		return max(unread(item), 0)
	})
}

// CountWhere counts the items matching pred
func CountWhere[T any](items []T, pred func(T) bool) int {
	return lo.CountBy(items, pred)
}
