package feed

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var (
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
	declEncodingR = regexp.MustCompile(`^\s*<\?xml[^>]*?encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)
)

// declaredEncoding returns the encoding label of the XML declaration, if any.
func declaredEncoding(data []byte) string {
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	m := declEncodingR.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return strings.ToLower(string(m[1]))
}

// prepareDocument checks that data is decodable and strips a UTF-8 byte order
// mark. Documents declaring another charset are left for the XML decoder to
// convert.
func prepareDocument(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	label := declaredEncoding(data)
	if label != "" && label != "utf-8" && label != "utf8" {
		if enc, _ := charset.Lookup(label); enc == nil {
			return nil, &ParseError{Kind: ParseEncoding, Err: fmt.Errorf("unsupported charset %q", label)}
		}
		return data, nil
	}

	if _, _, err := transform.Bytes(encoding.UTF8Validator, data); err != nil {
		return nil, &ParseError{Kind: ParseEncoding, Err: err}
	}
	return data, nil
}
