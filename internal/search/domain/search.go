package domain

import (
	"errors"
	"time"

	decisiondomain "decisionlog-backend/internal/decision/domain"
)

var (
	ErrInvalidCursor = errors.New("invalid search cursor")
	ErrEmptyQuery    = errors.New("search query is required")
)

type Pagination string

const (
	PaginateOffset Pagination = "offset"
	PaginateKeyset Pagination = "keyset"
)

// Query is one search request.
type Query struct {
	Text       string
	Limit      int
	Offset     int
	Cursor     string
	Pagination Pagination
	// Fallback asks Gmail directly when local hits are sparse.
	Fallback bool
}

// RankedID is a full-text hit before it is loaded.
type RankedID struct {
	ID   string
	Rank float64
}

// DecisionHit is a decision matched by full-text search.
type DecisionHit struct {
	Rank     float64                  `json:"rank"`
	Decision *decisiondomain.Decision `json:"decision"`
}

// MessageHit is a mirrored or live Gmail message.
type MessageHit struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	Subject      string    `json:"subject"`
	From         string    `json:"from"`
	Snippet      string    `json:"snippet"`
	InternalDate time.Time `json:"internal_date"`
	Rank         float64   `json:"rank"`
	Live         bool      `json:"live,omitempty"`
}

// Page is one page of results. Messages appear on the first page only.
type Page struct {
	Query         string        `json:"query"`
	Pagination    Pagination    `json:"pagination"`
	Decisions     []DecisionHit `json:"decisions"`
	Messages      []MessageHit  `json:"messages"`
	Total         int64         `json:"total"`
	Limit         int           `json:"limit"`
	Offset        int           `json:"offset,omitempty"`
	NextOffset    *int          `json:"next_offset,omitempty"`
	NextCursor    string        `json:"next_cursor,omitempty"`
	GmailFallback bool          `json:"gmail_fallback,omitempty"`
}

// SemanticHit is a decision found through the embedding index.
type SemanticHit struct {
	Score    float64                  `json:"score"`
	Decision *decisiondomain.Decision `json:"decision"`
}
