package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/feedwatch/app/feed"
	"github.com/lysyi3m/feedwatch/app/mq"
	"github.com/lysyi3m/feedwatch/app/queue"
	"github.com/lysyi3m/feedwatch/app/store"
)

const (
	DefaultPollInterval    = 600 * time.Second
	DefaultPollConcurrency = 4
)

type Config struct {
	// PollInterval is the target time for one pass over every tracked feed.
	PollInterval    time.Duration
	PollConcurrency int
}

type Option func(*Reader)

// WithQueue replaces the backoff queue, mostly so tests can seed it.
func WithQueue(q *queue.BackoffQueue) Option {
	return func(r *Reader) {
		r.queue = q
	}
}

// Reader polls every registered feed through a backoff queue and publishes
// entries it has not delivered before. At most one poll per feed runs at a
// time and at most PollConcurrency polls run overall.
type Reader struct {
	fetcher    Fetcher
	parser     Parser
	seen       store.SeenStore
	validators store.ValidatorStore
	publisher  mq.Publisher
	queue      *queue.BackoffQueue

	interval time.Duration
	slots    chan struct{}

	feeds    map[string]struct{}
	inFlight map[string]struct{}
	failing  map[FailureReason]map[string]struct{}
	mu       sync.Mutex

	counters counters

	cancel  context.CancelFunc
	polls   sync.WaitGroup
	loop    sync.WaitGroup
	running bool
}

func NewReader(cfg Config, fetcher Fetcher, parser Parser, seen store.SeenStore,
	validators store.ValidatorStore, publisher mq.Publisher, opts ...Option) *Reader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = DefaultPollConcurrency
	}

	r := &Reader{
		fetcher:    fetcher,
		parser:     parser,
		seen:       seen,
		validators: validators,
		publisher:  publisher,
		queue:      queue.NewBackoffQueue(queue.DefaultBackoff()),
		interval:   cfg.PollInterval,
		slots:      make(chan struct{}, cfg.PollConcurrency),
		feeds:      make(map[string]struct{}),
		inFlight:   make(map[string]struct{}),
		failing: map[FailureReason]map[string]struct{}{
			ReasonHTTP:    {},
			ReasonParsing: {},
			ReasonStorage: {},
		},
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddFeed registers a feed and queues it. It reports false when the feed was
// already registered.
func (r *Reader) AddFeed(rawURL string) (bool, error) {
	url, err := feed.NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.feeds[url]; ok {
		return false, nil
	}
	r.feeds[url] = struct{}{}

	// an in-flight poll re-queues the feed itself when it finishes
	if _, ok := r.inFlight[url]; !ok {
		r.queue.Push(url)
	}

	slog.Debug("Feed added", "feed", url)
	return true, nil
}

// RemoveFeed unregisters a feed and cancels any pending or deferred poll.
// It reports false when the feed was not registered.
func (r *Reader) RemoveFeed(ctx context.Context, rawURL string) (bool, error) {
	url, err := feed.NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	_, ok := r.feeds[url]
	delete(r.feeds, url)
	r.queue.Remove(url)
	r.clearFailing(url)
	r.mu.Unlock()

	if !ok {
		return false, nil
	}

	if err := r.validators.DeleteValidators(ctx, url); err != nil {
		slog.Warn("Failed to delete validators", "feed", url, "error", err)
	}

	slog.Debug("Feed removed", "feed", url)
	return true, nil
}

// SetFeeds replaces the registered set and loads the queue in random order.
// Invalid URLs are logged and skipped.
func (r *Reader) SetFeeds(ctx context.Context, rawURLs []string) int {
	urls := normalizeAll(rawURLs)

	r.mu.Lock()
	var removed []string
	for url := range r.feeds {
		if _, keep := urls[url]; !keep {
			removed = append(removed, url)
		}
	}
	for url := range r.feeds {
		r.queue.Remove(url)
	}

	r.feeds = make(map[string]struct{}, len(urls))
	ready := make([]string, 0, len(urls))
	for url := range urls {
		r.feeds[url] = struct{}{}
		if _, busy := r.inFlight[url]; !busy {
			ready = append(ready, url)
		}
	}
	for _, url := range removed {
		r.clearFailing(url)
	}
	r.queue.Populate(ready)
	r.mu.Unlock()

	for _, url := range removed {
		if err := r.validators.DeleteValidators(ctx, url); err != nil {
			slog.Warn("Failed to delete validators", "feed", url, "error", err)
		}
	}

	slog.Info("Feeds loaded", "count", len(urls), "removed", len(removed))
	return len(urls)
}

// SyncFeeds adds and removes feeds so that the registered set matches
// rawURLs, keeping queue position and backoff of unchanged feeds.
func (r *Reader) SyncFeeds(ctx context.Context, rawURLs []string) (int, int) {
	urls := normalizeAll(rawURLs)

	var added, removed int
	for _, url := range r.GetFeeds() {
		if _, keep := urls[url]; !keep {
			if ok, _ := r.RemoveFeed(ctx, url); ok {
				removed++
			}
		}
	}
	for url := range urls {
		if ok, _ := r.AddFeed(url); ok {
			added++
		}
	}

	slog.Info("Feeds synced", "added", added, "removed", removed)
	return added, removed
}

func (r *Reader) GetFeeds() []string {
	r.mu.Lock()
	urls := make([]string, 0, len(r.feeds))
	for url := range r.feeds {
		urls = append(urls, url)
	}
	r.mu.Unlock()

	slices.Sort(urls)
	return urls
}

func (r *Reader) HasFeed(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.feeds[url]
	return ok
}

func normalizeAll(rawURLs []string) map[string]struct{} {
	urls := make(map[string]struct{}, len(rawURLs))
	for _, raw := range rawURLs {
		url, err := feed.NormalizeURL(raw)
		if err != nil {
			slog.Warn("Skipping invalid feed URL", "url", raw, "error", err)
			continue
		}
		urls[url] = struct{}{}
	}
	return urls
}

func (r *Reader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.loop.Add(1)
	go func() {
		defer r.loop.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				timer.Reset(r.Advance(ctx))
			}
		}
	}()

	slog.Info("Feed reader started", "interval", r.interval, "concurrency", cap(r.slots))
}

// Stop cancels in-flight polls and waits for them to finish.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.loop.Wait()
	r.polls.Wait()

	slog.Info("Feed reader stopped")
}

// Wait blocks until every poll started by Advance has finished.
func (r *Reader) Wait() {
	r.polls.Wait()
}

// Advance admits at most one due feed: it waits for a free concurrency slot,
// pops the next feed that is registered and not already in flight and polls
// it in the background. It returns how long to wait before the next call so
// that one pass over the queue takes about PollInterval.
func (r *Reader) Advance(ctx context.Context) time.Duration {
	start := time.Now()
	delay := r.interval / time.Duration(max(r.queue.Length(), 1))

	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return 0
	}

	url, ok := r.next()
	if !ok {
		<-r.slots
		// nothing ready: wake up no later than the next deferred feed
		if due, ok := r.queue.NextDue(); ok {
			delay = min(delay, time.Until(due))
		}
		return max(0, delay-time.Since(start))
	}

	r.polls.Add(1)
	go func() {
		defer r.polls.Done()
		defer func() { <-r.slots }()
		r.poll(ctx, url)
	}()

	return max(0, delay-time.Since(start))
}

// next pops until it finds a feed that can be dispatched and marks it in
// flight. Entries for removed or in-flight feeds are dropped; an in-flight
// poll re-queues its feed when done.
func (r *Reader) next() (string, bool) {
	for {
		url, ok := r.queue.Pop()
		if !ok {
			return "", false
		}

		r.mu.Lock()
		_, registered := r.feeds[url]
		_, busy := r.inFlight[url]
		if registered && !busy {
			r.inFlight[url] = struct{}{}
			r.mu.Unlock()
			return url, true
		}
		r.mu.Unlock()

		slog.Debug("Dropping queued feed", "feed", url, "registered", registered, "in_flight", busy)
	}
}

type pollError struct {
	reason FailureReason
	err    error
}

func (e *pollError) Error() string {
	return fmt.Sprintf("%s: %v", e.reason, e.err)
}

func (e *pollError) Unwrap() error {
	return e.err
}

func (r *Reader) poll(ctx context.Context, url string) {
	fetchKey := uuid.NewString()
	start := time.Now()

	validators, err := r.pollFeed(ctx, url, fetchKey)

	r.counters.polls.Add(1)
	r.finish(ctx, url, fetchKey, validators, err)

	slog.Debug("Poll finished", "feed", url, "fetch_key", fetchKey, "duration", time.Since(start), "failed", err != nil)
}

// pollFeed runs fetch, parse, dedup and record for one feed. It returns the
// validators to cache, nil when they are unchanged. Any error it returns is
// a *pollError.
func (r *Reader) pollFeed(ctx context.Context, url, fetchKey string) (*feed.Validators, error) {
	validators, _, err := r.validators.GetValidators(ctx, url)
	if err != nil {
		// an unconditional fetch is still correct
		slog.Warn("Failed to load validators", "feed", url, "error", err)
		validators = feed.Validators{}
	}

	result, err := r.fetcher.Fetch(ctx, url, validators)
	if err != nil {
		return nil, &pollError{reason: ReasonHTTP, err: err}
	}
	r.counters.lastFetchDuration.Store(int64(result.Duration))

	if result.NotModified {
		r.counters.notModified.Add(1)
		slog.Debug("Feed not modified", "feed", url, "fetch_key", fetchKey)
		return nil, nil
	}

	channel, err := r.parser.Run(result.Body)
	if err != nil {
		return nil, &pollError{reason: ReasonParsing, err: err}
	}

	candidates := make([]string, 0, len(channel.Entries))
	for _, entry := range channel.Entries {
		if entry.Fingerprint != "" {
			candidates = append(candidates, entry.Fingerprint)
		}
	}

	seenFeed, err := r.seen.HasSeenFeed(ctx, url)
	if err != nil {
		return nil, &pollError{reason: ReasonStorage, err: err}
	}
	initialSync := !seenFeed

	seenList, err := r.seen.SeenFingerprints(ctx, url, candidates)
	if err != nil {
		return nil, &pollError{reason: ReasonStorage, err: err}
	}
	seen := make(map[string]struct{}, len(seenList))
	for _, fp := range seenList {
		seen[fp] = struct{}{}
	}

	var newEntries []feed.Entry
	var newFingerprints []string
	for _, entry := range channel.Entries {
		if entry.Fingerprint != "" {
			if _, ok := seen[entry.Fingerprint]; ok {
				continue
			}
			// also skips repeats within the same document
			seen[entry.Fingerprint] = struct{}{}
			newFingerprints = append(newFingerprints, entry.Fingerprint)
		}
		if !initialSync {
			newEntries = append(newEntries, entry)
		}
	}

	if initialSync || len(newFingerprints) > 0 {
		if err := r.seen.RecordFingerprints(ctx, url, newFingerprints); err != nil {
			return nil, &pollError{reason: ReasonStorage, err: err}
		}
	}

	if len(newEntries) > 0 {
		event := EntriesEvent{
			FeedTitle: channel.Title,
			FeedURL:   url,
			FetchKey:  fetchKey,
			Entries:   newEntries,
		}
		if err := r.publisher.Publish(ctx, mq.NewMessage(EventEntries, Sender, event)); err != nil {
			slog.Error("Failed to publish entries", "feed", url, "fetch_key", fetchKey, "entries", len(newEntries), "error", err)
		} else {
			r.counters.entriesEmitted.Add(uint64(len(newEntries)))
		}
	}

	slog.Debug("Feed processed",
		"feed", url,
		"fetch_key", fetchKey,
		"total", len(channel.Entries),
		"new", len(newFingerprints),
		"emitted", len(newEntries),
		"initial_sync", initialSync)

	return &result.Validators, nil
}

// finish releases the in-flight marker and re-queues the feed, immediately
// on success or after a backoff on failure. Removed feeds are neither
// re-queued nor get their validators cached.
func (r *Reader) finish(ctx context.Context, url, fetchKey string, validators *feed.Validators, err error) {
	var pollErr *pollError
	failed := errors.As(err, &pollErr)

	var backoff time.Duration
	r.mu.Lock()
	delete(r.inFlight, url)
	_, registered := r.feeds[url]
	if registered {
		if failed {
			backoff = r.queue.Backoff(url)
			r.markFailing(url, pollErr.reason)
		} else {
			if validators != nil {
				// under r.mu so RemoveFeed cannot interleave
				if err := r.validators.SetValidators(ctx, url, *validators); err != nil {
					slog.Warn("Failed to save validators", "feed", url, "error", err)
				}
			}
			r.queue.Push(url)
			r.clearFailing(url)
		}
	}
	r.mu.Unlock()

	if !failed {
		r.publish(ctx, EventSuccess, SuccessEvent{URL: url, FetchKey: fetchKey})
		return
	}

	r.counters.failures.Add(1)
	silent := feed.IsSilent(pollErr.err)

	logFn := slog.Error
	if silent {
		logFn = slog.Warn
	}
	logFn("Poll failed",
		"feed", url,
		"fetch_key", fetchKey,
		"reason", string(pollErr.reason),
		"backoff", backoff,
		"error", pollErr.err)

	r.publish(ctx, EventError, ErrorEvent{
		URL:      url,
		FetchKey: fetchKey,
		Reason:   pollErr.reason,
		Silent:   silent,
	})
}

func (r *Reader) publish(ctx context.Context, event string, data any) {
	if err := r.publisher.Publish(ctx, mq.NewMessage(event, Sender, data)); err != nil {
		slog.Warn("Failed to publish event", "event", event, "error", err)
	}
}
