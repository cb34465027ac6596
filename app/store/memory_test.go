package store

import (
	"context"
	"sync"
	"testing"

	"github.com/lysyi3m/feedwatch/app/feed"
)

var (
	_ SeenStore      = (*MemoryStore)(nil)
	_ SeenStore      = (*RedisStore)(nil)
	_ ValidatorStore = (*MemoryValidators)(nil)
	_ ValidatorStore = (*RedisStore)(nil)
)

const testFeedURL = "https://example.org/feed.xml"

// testSeenStore runs the SeenStore contract against any implementation.
func testSeenStore(t *testing.T, s SeenStore) {
	t.Helper()
	ctx := context.Background()

	seen, err := s.HasSeenFeed(ctx, testFeedURL)
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("Expected feed not to be seen before recording")
	}

	fps := []string{"md5:a", "md5:b", "md5:c"}
	if err := s.RecordFingerprints(ctx, testFeedURL, fps); err != nil {
		t.Fatal(err)
	}

	seen, err = s.HasSeenFeed(ctx, testFeedURL)
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("Expected feed to be seen after recording")
	}

	got, err := s.SeenFingerprints(ctx, testFeedURL, []string{"md5:a", "md5:x", "md5:c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "md5:a" || got[1] != "md5:c" {
		t.Errorf("Expected [md5:a md5:c], got %v", got)
	}

	// recording is an idempotent union
	if err := s.RecordFingerprints(ctx, testFeedURL, []string{"md5:a", "md5:d"}); err != nil {
		t.Fatal(err)
	}
	got, err = s.SeenFingerprints(ctx, testFeedURL, []string{"md5:a", "md5:b", "md5:c", "md5:d"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("Expected 4 seen fingerprints, got %v", got)
	}

	// fingerprints never leak across feeds
	got, err = s.SeenFingerprints(ctx, "https://example.com/other.xml", []string{"md5:a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no seen fingerprints for another feed, got %v", got)
	}

	// an empty record still marks the feed as seen
	if err := s.RecordFingerprints(ctx, "https://example.com/empty.xml", nil); err != nil {
		t.Fatal(err)
	}
	seen, err = s.HasSeenFeed(ctx, "https://example.com/empty.xml")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("Expected empty feed to be seen after recording")
	}
}

func testValidatorStore(t *testing.T, v ValidatorStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := v.GetValidators(ctx, testFeedURL)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Expected no validators before set")
	}

	want := feed.Validators{ETag: `"abc"`, LastModified: "Mon, 03 Jul 2023 10:00:00 GMT"}
	if err := v.SetValidators(ctx, testFeedURL, want); err != nil {
		t.Fatal(err)
	}

	got, ok, err := v.GetValidators(ctx, testFeedURL)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got != want {
		t.Errorf("Expected %+v, got %+v (found=%v)", want, got, ok)
	}

	// a new value replaces the old one entirely
	if err := v.SetValidators(ctx, testFeedURL, feed.Validators{ETag: `"def"`}); err != nil {
		t.Fatal(err)
	}
	got, _, err = v.GetValidators(ctx, testFeedURL)
	if err != nil {
		t.Fatal(err)
	}
	if got.ETag != `"def"` || got.LastModified != "" {
		t.Errorf("Expected validators to be replaced, got %+v", got)
	}

	if err := v.DeleteValidators(ctx, testFeedURL); err != nil {
		t.Fatal(err)
	}
	_, ok, err = v.GetValidators(ctx, testFeedURL)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Expected validators to be deleted")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testSeenStore(t, s)

	if s.Count(testFeedURL) != 4 {
		t.Errorf("Expected 4 fingerprints, got %d", s.Count(testFeedURL))
	}
}

func TestMemoryValidators(t *testing.T) {
	testValidatorStore(t, NewMemoryValidators())
}

func TestMemoryStoreConcurrentFeeds(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := testFeedURL + "?n=" + string(rune('a'+i))
			for j := 0; j < 50; j++ {
				fp := feed.Fingerprint(string(rune('A' + j)))
				_ = s.RecordFingerprints(ctx, url, []string{fp})
				_, _ = s.SeenFingerprints(ctx, url, []string{fp})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		url := testFeedURL + "?n=" + string(rune('a'+i))
		if s.Count(url) != 50 {
			t.Errorf("Expected 50 fingerprints for %s, got %d", url, s.Count(url))
		}
	}
}
