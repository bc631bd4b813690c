package mcpservice

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/ggoodman/mcp-starter-go/mcperr"
)

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items []T
	// NextCursor is set when more items follow this page.
	NextCursor *string
}

// PageOption configures a Page.
type PageOption[T any] func(*Page[T])

// WithNextCursor sets the continuation cursor.
func WithNextCursor[T any](cursor string) PageOption[T] {
	return func(p *Page[T]) { p.NextCursor = &cursor }
}

func NewPage[T any](items []T, opts ...PageOption[T]) Page[T] {
	p := Page[T]{Items: items}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

const cursorPrefix = "o:"

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// decodeCursor turns a cursor into an offset into a listing of size n. A nil
// or empty cursor is offset zero.
func decodeCursor(cursor *string, n int) (int, error) {
	if cursor == nil || *cursor == "" {
		return 0, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(*cursor)
	if err != nil {
		return 0, mcperr.InvalidParams("invalid cursor")
	}
	s, ok := strings.CutPrefix(string(b), cursorPrefix)
	if !ok {
		return 0, mcperr.InvalidParams("invalid cursor")
	}
	off, err := strconv.Atoi(s)
	if err != nil || off < 0 || off > n {
		return 0, mcperr.InvalidParams("invalid cursor")
	}
	return off, nil
}

// pageSlice returns the page of all starting at cursor.
func pageSlice[T any](all []T, pageSize int, cursor *string) (Page[T], error) {
	start, err := decodeCursor(cursor, len(all))
	if err != nil {
		return Page[T]{}, err
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	if end < len(all) {
		return NewPage(items, WithNextCursor[T](encodeCursor(end))), nil
	}
	return NewPage(items), nil
}
