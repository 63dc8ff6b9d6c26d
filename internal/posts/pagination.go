package posts

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
)

// PaginationMode selects how a page window is anchored.
type PaginationMode string

const (
	// PaginationOffset windows by position. Concurrent inserts shift later pages.
	PaginationOffset PaginationMode = "offset"
	// PaginationCursor windows by the created_at of the last row seen and is stable under inserts.
	PaginationCursor PaginationMode = "cursor"
)

const (
	opPaginate = "posts.paginate"
	// maxOffset keeps offset+limit far from int overflow.
	maxOffset = math.MaxInt32
)

// Limits bounds the page size accepted from callers.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits mirrors the defaults of the public API.
var DefaultLimits = Limits{Default: 10, Max: 100}

// PageRequest describes one page window. Offset is only meaningful in offset mode and
// Cursor only in cursor mode; a zero Cursor asks for the first page.
type PageRequest struct {
	Mode   PaginationMode
	Limit  int
	Offset int
	Cursor time.Time
}

// Page is one window of posts in newest-first order.
type Page struct {
	Mode  PaginationMode
	Posts []Post
	// HasMore is true iff the page came back full; it is a heuristic, not a count.
	HasMore    bool
	NextOffset int
	// NextCursor is nil when the page came back short, signalling exhaustion.
	NextCursor *string
}

// OffsetRequest parses raw limit and offset query values into an offset-mode request.
func (l Limits) OffsetRequest(rawLimit, rawOffset string) (PageRequest, error) {
	limit, err := l.parseLimit(rawLimit)
	if err != nil {
		return PageRequest{}, err
	}
	offset := 0
	if trimmed := strings.TrimSpace(rawOffset); trimmed != "" {
		offset, err = strconv.Atoi(trimmed)
		if err != nil || offset < 0 || offset > maxOffset {
			return PageRequest{}, failures.InvalidInput(opPaginate, "invalid_offset", "offset must be a non-negative integer")
		}
	}
	return PageRequest{Mode: PaginationOffset, Limit: limit, Offset: offset}, nil
}

// CursorRequest parses raw limit and cursor query values into a cursor-mode request.
func (l Limits) CursorRequest(rawLimit, rawCursor string) (PageRequest, error) {
	limit, err := l.parseLimit(rawLimit)
	if err != nil {
		return PageRequest{}, err
	}
	cursor, err := DecodeCursor(rawCursor)
	if err != nil {
		return PageRequest{}, err
	}
	return PageRequest{Mode: PaginationCursor, Limit: limit, Cursor: cursor}, nil
}

func (l Limits) parseLimit(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return l.Default, nil
	}
	limit, err := strconv.Atoi(trimmed)
	if err != nil || limit <= 0 {
		return 0, failures.InvalidInput(opPaginate, "invalid_limit", "limit must be a positive integer")
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return limit, nil
}

func (r PageRequest) validate() error {
	if r.Limit <= 0 {
		return failures.InvalidInput(opPaginate, "invalid_limit", "limit must be a positive integer")
	}
	switch r.Mode {
	case PaginationOffset:
		if r.Offset < 0 || r.Offset > maxOffset {
			return failures.InvalidInput(opPaginate, "invalid_offset", "offset must be a non-negative integer")
		}
	case PaginationCursor:
	default:
		return failures.InvalidInput(opPaginate, "invalid_mode", "unknown pagination mode")
	}
	return nil
}

// EncodeCursor renders a created_at value as an opaque cursor.
func EncodeCursor(createdAt time.Time) string {
	return createdAt.UTC().Format(time.RFC3339Nano)
}

// DecodeCursor parses a cursor produced by EncodeCursor. Blank input yields the zero time.
func DecodeCursor(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, failures.InvalidInput(opPaginate, "invalid_cursor", "cursor is malformed")
	}
	return parsed.UTC(), nil
}

// paginate shapes the rows fetched for request into a Page.
func paginate(request PageRequest, rows []Post) Page {
	if rows == nil {
		rows = []Post{}
	}
	full := request.Limit > 0 && len(rows) == request.Limit
	page := Page{
		Mode:    request.Mode,
		Posts:   rows,
		HasMore: full,
	}
	switch request.Mode {
	case PaginationOffset:
		page.NextOffset = request.Offset + request.Limit
	case PaginationCursor:
		if full {
			cursor := EncodeCursor(rows[len(rows)-1].CreatedAt)
			page.NextCursor = &cursor
		}
	}
	return page
}
