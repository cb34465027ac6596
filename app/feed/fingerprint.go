package feed

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"golang.org/x/net/html"
)

const fingerprintPrefix = "md5:"

// Fingerprint hashes the source string of an entry (its id, link or title)
// into a self-describing dedup key. An empty source has no fingerprint.
func Fingerprint(source string) string {
	if source == "" {
		return ""
	}
	sum := md5.Sum([]byte(source))
	return fingerprintPrefix + hex.EncodeToString(sum[:])
}

// StripHTML returns the text content of s with markup removed and
// whitespace collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.Write(z.Text())
			continue
		}
		// keep words on either side of a tag apart
		sb.WriteByte(' ')
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}
