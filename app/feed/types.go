package feed

import (
	"time"
)

// Normalized feed types

type Channel struct {
	Title   string
	Entries []Entry
}

// Entry fields are empty when the source document does not carry them.
type Entry struct {
	Title         string `json:"title,omitempty"`
	Link          string `json:"link,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Author        string `json:"author,omitempty"`
	PublishedDate string `json:"pubdate,omitempty"`
	Fingerprint   string `json:"-"`
}

// Fetch types

type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
}

func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

type FetchResult struct {
	NotModified bool
	Body        []byte
	Validators  Validators
	Duration    time.Duration
}

// Feed list types

type Source struct {
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`
}

func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type List struct {
	Feeds []Source `yaml:"feeds"`
}
