package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

const checkRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <title>First post</title>
      <link>https://example.org/posts/1</link>
      <guid>post-1</guid>
      <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
    </item>
    <item>
      <title>日本語のタイトル</title>
      <link>https://example.org/posts/2</link>
    </item>
  </channel>
</rss>`

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	if err := os.WriteFile(path, []byte(checkRSS), 0644); err != nil {
		t.Fatal(err)
	}

	output, err := executeCmd(t, "check", path)
	if err != nil {
		t.Fatalf("check command error = %v", err)
	}

	for _, phrase := range []string{"Example Feed", "Entries: 2", "First post", "日本語のタイトル", "md5:"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("Expected output to contain %q, got:\n%s", phrase, output)
		}
	}
}

func TestCheckURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(checkRSS))
	}))
	defer server.Close()

	output, err := executeCmd(t, "check", server.URL+"/feed.xml")
	if err != nil {
		t.Fatalf("check command error = %v", err)
	}
	if !strings.Contains(output, "Fetched "+server.URL+"/feed.xml") {
		t.Errorf("Expected fetch summary, got:\n%s", output)
	}
}

func TestCheckFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	notAFeed := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(notAFeed, []byte(`<html><body>hello</body></html>`), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		arg  string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.xml")},
		{"not a feed", notAFeed},
		{"http status", server.URL + "/feed.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCmd(t, "check", tt.arg); err == nil {
				t.Error("Expected check to fail")
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(output, "feedwatch ") {
		t.Errorf("Expected version output, got %q", output)
	}
}

func TestFormatTableAlignsWideRunes(t *testing.T) {
	lines := formatTable(
		[]string{"#", "Title", "Fingerprint"},
		[][]string{
			{"1", "abc", "md5:1"},
			{"2", "日本語", "md5:2"},
		},
	)

	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d", len(lines))
	}

	// the fingerprint column starts at the same display offset on every row
	offset := -1
	for _, line := range lines[2:] {
		idx := strings.Index(line, "md5:")
		got := runewidth.StringWidth(line[:idx])
		if offset == -1 {
			offset = got
		} else if got != offset {
			t.Errorf("Expected column at offset %d, got %d in %q", offset, got, line)
		}
	}

	if !strings.HasPrefix(lines[1], "-") {
		t.Errorf("Expected separator row, got %q", lines[1])
	}
}
