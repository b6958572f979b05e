package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type Cursor struct {
	ID        int64     `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Limit returns the clamped page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// Apply orders newest first by (created_at, id) and fetches one extra row
// so BuildCursorPageInfo can tell whether another page exists.
func Apply(q *gorm.DB, p Pagination, table string) (*gorm.DB, error) {
	prefix := ""
	if table != "" {
		prefix = table + "."
	}
	if p.PageToken != "" {
		cursor, err := DecodeCursor(p.PageToken)
		if err != nil {
			return nil, err
		}
		q = q.Where("("+prefix+"created_at < ?) OR ("+prefix+"created_at = ? AND "+prefix+"id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	return q.Order(prefix + "created_at DESC").Order(prefix + "id DESC").Limit(p.Limit() + 1), nil
}

// BuildCursorPageInfo trims the look-ahead row and returns the page with its info.
func BuildCursorPageInfo[T any](data []T, limit int, extractCursor func(T) Cursor) ([]T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{HasMore: false}
	}

	data = data[:limit]
	token, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return data, PageInfo{HasMore: false}
	}
	return data, PageInfo{HasMore: true, NextPageToken: token}
}
