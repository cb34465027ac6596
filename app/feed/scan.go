package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

var errWrongRoot = errors.New("unexpected root element")

var atomTextElements = map[string]bool{
	"title":    true,
	"subtitle": true,
	"summary":  true,
	"rights":   true,
}

// scanResult carries what the dialect parsers cannot report themselves.
type scanResult struct {
	// guidPermaLink is the raw isPermaLink attribute of each RSS item's
	// guid in document order, empty when absent.
	guidPermaLink []string
}

// scan walks the whole document once before it is handed to the dialect
// parser. It rejects documents whose root does not belong to dialect and
// classifies markup, truncation and attribute errors.
func scan(data []byte, dialect Dialect) (*scanResult, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	result := &scanResult{}
	rootSeen := false
	depth, itemDepth := 0, 0
	for {
		tok, err := d.Token()
		if err == io.EOF {
			if !rootSeen {
				return nil, &ParseError{Kind: ParseEOF, Dialect: dialect, Err: errors.New("no root element")}
			}
			return result, nil
		}
		if err != nil {
			return nil, classifyXMLError(dialect, err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			if depth == itemDepth {
				itemDepth = 0
			}
			depth--
			continue
		case xml.StartElement:
			depth++

			if !rootSeen {
				rootSeen = true
				if !isRoot(dialect, t.Name.Local) {
					return nil, fmt.Errorf("%w <%s>", errWrongRoot, t.Name.Local)
				}
				continue
			}

			if err := checkAttributes(dialect, t); err != nil {
				return nil, err
			}

			if dialect != DialectRSS {
				continue
			}
			switch {
			case t.Name.Local == "item" && itemDepth == 0:
				itemDepth = depth
				result.guidPermaLink = append(result.guidPermaLink, "")
			case t.Name.Local == "guid" && itemDepth > 0:
				result.guidPermaLink[len(result.guidPermaLink)-1] = attrValue(t, "isPermaLink")
			}
		}
	}
}

func attrValue(start xml.StartElement, name string) string {
	for _, attr := range start.Attr {
		if attr.Name.Space == "" && attr.Name.Local == name {
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}

func isRoot(dialect Dialect, name string) bool {
	switch dialect {
	case DialectRSS:
		return name == "rss" || name == "RDF"
	case DialectAtom:
		return name == "feed"
	}
	return false
}

func checkAttributes(dialect Dialect, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Space != "" {
			continue
		}
		value := strings.TrimSpace(attr.Value)

		switch dialect {
		case DialectRSS:
			if start.Name.Local == "guid" && attr.Name.Local == "isPermaLink" {
				if !strings.EqualFold(value, "true") && !strings.EqualFold(value, "false") {
					return attributeError(dialect, start, attr)
				}
			}
		case DialectAtom:
			if attr.Name.Local != "type" {
				continue
			}
			if atomTextElements[start.Name.Local] && !isAtomTextType(value) {
				return attributeError(dialect, start, attr)
			}
			if start.Name.Local == "content" && !isAtomTextType(value) && !strings.Contains(value, "/") {
				return attributeError(dialect, start, attr)
			}
		}
	}
	return nil
}

func isAtomTextType(value string) bool {
	switch value {
	case "text", "html", "xhtml":
		return true
	}
	return false
}

func attributeError(dialect Dialect, start xml.StartElement, attr xml.Attr) error {
	return &ParseError{
		Kind:    ParseAttribute,
		Dialect: dialect,
		Err:     fmt.Errorf("unexpected value %q for attribute %s of <%s>", attr.Value, attr.Name.Local, start.Name.Local),
	}
}

func classifyXMLError(dialect Dialect, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &ParseError{Kind: ParseEOF, Dialect: dialect, Err: err}
	}

	var syntaxErr *xml.SyntaxError
	if !errors.As(err, &syntaxErr) {
		// charset conversion failures are the only non-syntax errors the decoder reports
		return &ParseError{Kind: ParseEncoding, Dialect: dialect, Err: err}
	}

	switch {
	case syntaxErr.Msg == "unexpected EOF":
		return &ParseError{Kind: ParseEOF, Dialect: dialect, Err: err}
	case syntaxErr.Msg == "invalid UTF-8", strings.HasPrefix(syntaxErr.Msg, "illegal character code"):
		return &ParseError{Kind: ParseEncoding, Dialect: dialect, Err: err}
	default:
		return &ParseError{Kind: ParseMalformed, Dialect: dialect, Err: err}
	}
}
