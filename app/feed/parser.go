package feed

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

// Parser normalizes RSS (0.9x, 1.0, 2.0) and Atom documents into a Channel.
// It holds no state and is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Run parses data as RSS first and falls back to Atom only when the root
// element is not an RSS one. Every failure is a *ParseError.
func (p *Parser) Run(data []byte) (*Channel, error) {
	data, err := prepareDocument(data)
	if err != nil {
		return nil, err
	}

	channel, err := p.parseRSS(data)
	if errors.Is(err, errWrongRoot) {
		channel, err = p.parseAtom(data)
	}
	if errors.Is(err, errWrongRoot) {
		return nil, &ParseError{Kind: ParseUnsupported, Err: err}
	}
	if err != nil {
		return nil, err
	}

	return channel, nil
}

func (p *Parser) parseRSS(data []byte) (*Channel, error) {
	scanned, err := scan(data, DialectRSS)
	if err != nil {
		return nil, err
	}

	parser := &rss.Parser{}
	parsed, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Kind: ParseMalformed, Dialect: DialectRSS, Err: err}
	}

	channel := &Channel{
		Title:   StripHTML(parsed.Title),
		Entries: make([]Entry, 0, len(parsed.Items)),
	}

	// gofeed matches isPermaLink case-sensitively against "isPermalink", so
	// the attribute comes from the scan instead
	permaLinks := scanned.guidPermaLink
	if len(permaLinks) != len(parsed.Items) {
		permaLinks = nil
	}

	for i, item := range parsed.Items {
		if item == nil {
			continue
		}
		var permaLink string
		if permaLinks != nil {
			permaLink = permaLinks[i]
		} else if item.GUID != nil {
			permaLink = item.GUID.IsPermalink
		}
		channel.Entries = append(channel.Entries, p.normalizeRSSItem(item, permaLink))
	}

	return channel, nil
}

func (p *Parser) normalizeRSSItem(item *rss.Item, permaLink string) Entry {
	entry := Entry{
		Title:         StripHTML(item.Title),
		Link:          strings.TrimSpace(item.Link),
		Summary:       cmp.Or(strings.TrimSpace(item.Description), strings.TrimSpace(item.Content)),
		Author:        strings.TrimSpace(item.Author),
		PublishedDate: strings.TrimSpace(item.PubDate),
	}

	var guid string
	if item.GUID != nil {
		guid = strings.TrimSpace(item.GUID.Value)
		if entry.Link == "" && isPermalink(guid, permaLink) {
			entry.Link = guid
		}
	}

	if entry.Author == "" && item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		entry.Author = strings.Join(item.DublinCoreExt.Creator, ", ")
	}

	entry.Fingerprint = Fingerprint(cmp.Or(guid, entry.Link, strings.TrimSpace(item.Title)))
	return entry
}

// An RSS guid is a permalink unless isPermaLink says otherwise.
func isPermalink(guid, permaLink string) bool {
	if guid == "" {
		return false
	}
	v := strings.TrimSpace(permaLink)
	return v == "" || strings.EqualFold(v, "true")
}

func (p *Parser) parseAtom(data []byte) (*Channel, error) {
	if _, err := scan(data, DialectAtom); err != nil {
		return nil, err
	}

	parser := &atom.Parser{}
	parsed, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Kind: ParseMalformed, Dialect: DialectAtom, Err: err}
	}

	channel := &Channel{
		Title:   StripHTML(parsed.Title),
		Entries: make([]Entry, 0, len(parsed.Entries)),
	}

	for _, e := range parsed.Entries {
		if e == nil {
			continue
		}
		entry, err := p.normalizeAtomEntry(e, parsed.Authors)
		if err != nil {
			return nil, err
		}
		channel.Entries = append(channel.Entries, entry)
	}

	return channel, nil
}

func (p *Parser) normalizeAtomEntry(e *atom.Entry, feedAuthors []*atom.Person) (Entry, error) {
	if e.Published != "" && e.PublishedParsed == nil {
		return Entry{}, dateError("published", e.Published)
	}
	if e.Updated != "" && e.UpdatedParsed == nil {
		return Entry{}, dateError("updated", e.Updated)
	}

	authors := e.Authors
	if len(authors) == 0 {
		authors = feedAuthors
	}

	entry := Entry{
		Title:   StripHTML(e.Title),
		Link:    atomLink(e.Links),
		Summary: strings.TrimSpace(e.Summary),
		Author:  formatAtomAuthors(authors),
	}

	if entry.Summary == "" && e.Content != nil {
		entry.Summary = strings.TrimSpace(e.Content.Value)
	}

	if published := cmp.Or(e.PublishedParsed, e.UpdatedParsed); published != nil {
		entry.PublishedDate = published.Format(time.RFC1123Z)
	}

	entry.Fingerprint = Fingerprint(cmp.Or(strings.TrimSpace(e.ID), entry.Link, strings.TrimSpace(e.Title)))
	return entry, nil
}

func dateError(field, value string) error {
	return &ParseError{
		Kind:    ParseDate,
		Dialect: DialectAtom,
		Err:     fmt.Errorf("unexpected %s date format %q", field, value),
	}
}

// atomLink prefers the alternate link and falls back to the first one.
func atomLink(links []*atom.Link) string {
	var first string
	for _, link := range links {
		if link == nil || link.Href == "" {
			continue
		}
		if link.Rel == "" || link.Rel == "alternate" {
			return strings.TrimSpace(link.Href)
		}
		if first == "" {
			first = strings.TrimSpace(link.Href)
		}
	}
	return first
}

func formatAtomAuthors(people []*atom.Person) string {
	authors := make([]string, 0, len(people))
	for _, person := range people {
		if person == nil {
			continue
		}

		var sb strings.Builder
		sb.WriteString(strings.TrimSpace(person.Name))
		if email := strings.TrimSpace(person.Email); email != "" {
			sb.WriteString("<" + email + ">")
		}
		if uri := strings.TrimSpace(person.URI); uri != "" {
			sb.WriteString("<" + uri + ">")
		}

		if sb.Len() > 0 {
			authors = append(authors, sb.String())
		}
	}
	return strings.Join(authors, ", ")
}
