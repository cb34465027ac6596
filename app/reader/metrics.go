package reader

import (
	"sync/atomic"
	"time"
)

type counters struct {
	polls             atomic.Uint64
	notModified       atomic.Uint64
	entriesEmitted    atomic.Uint64
	failures          atomic.Uint64
	lastFetchDuration atomic.Int64
}

// Metrics is a point-in-time view of the reader for health and metrics
// endpoints. It is never used for scheduling decisions.
type Metrics struct {
	Feeds             int           `json:"feeds"`
	Ready             int           `json:"ready"`
	Deferred          int           `json:"deferred"`
	InFlight          int           `json:"in_flight"`
	FailingHTTP       int           `json:"failing_http"`
	FailingParsing    int           `json:"failing_parsing"`
	FailingStorage    int           `json:"failing_storage"`
	Polls             uint64        `json:"polls_total"`
	NotModified       uint64        `json:"not_modified_total"`
	EntriesEmitted    uint64        `json:"entries_emitted_total"`
	Failures          uint64        `json:"failures_total"`
	LastFetchDuration time.Duration `json:"last_fetch_duration_ns"`
}

func (r *Reader) Metrics() Metrics {
	r.mu.Lock()
	m := Metrics{
		Feeds:          len(r.feeds),
		InFlight:       len(r.inFlight),
		FailingHTTP:    len(r.failing[ReasonHTTP]),
		FailingParsing: len(r.failing[ReasonParsing]),
		FailingStorage: len(r.failing[ReasonStorage]),
	}
	r.mu.Unlock()

	m.Ready = r.queue.Length()
	m.Deferred = r.queue.DeferredLength()
	m.Polls = r.counters.polls.Load()
	m.NotModified = r.counters.notModified.Load()
	m.EntriesEmitted = r.counters.entriesEmitted.Load()
	m.Failures = r.counters.failures.Load()
	m.LastFetchDuration = time.Duration(r.counters.lastFetchDuration.Load())
	return m
}

// FailingFeeds returns the feeds whose last poll failed for reason.
func (r *Reader) FailingFeeds(reason FailureReason) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls := make([]string, 0, len(r.failing[reason]))
	for url := range r.failing[reason] {
		urls = append(urls, url)
	}
	return urls
}

// must hold r.mu
func (r *Reader) markFailing(url string, reason FailureReason) {
	for other, set := range r.failing {
		if other != reason {
			delete(set, url)
		}
	}
	r.failing[reason][url] = struct{}{}
}

// must hold r.mu
func (r *Reader) clearFailing(url string) {
	for _, set := range r.failing {
		delete(set, url)
	}
}
