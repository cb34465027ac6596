package reader

import (
	"github.com/lysyi3m/feedwatch/app/feed"
)

const (
	Sender = "FeedReader"

	EventEntries = "feed.entries"
	EventSuccess = "feed.success"
	EventError   = "feed.error"
)

type FailureReason string

const (
	ReasonHTTP    FailureReason = "http"
	ReasonParsing FailureReason = "parsing"
	ReasonStorage FailureReason = "storage"
)

// EntriesEvent carries the entries of one poll that were never delivered
// before.
type EntriesEvent struct {
	FeedTitle string       `json:"feedTitle"`
	FeedURL   string       `json:"feedUrl"`
	FetchKey  string       `json:"fetchKey"`
	Entries   []feed.Entry `json:"entries"`
}

type SuccessEvent struct {
	URL      string `json:"url"`
	FetchKey string `json:"fetchKey"`
}

// ErrorEvent reports a failed poll by reason only; error text stays in the
// process log.
type ErrorEvent struct {
	URL      string        `json:"url"`
	FetchKey string        `json:"fetchKey"`
	Reason   FailureReason `json:"reason"`
	Silent   bool          `json:"silent"`
}
