package objectstore

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Object is one entry of a bucket listing.
type Object struct {
	Key          string
	Size         int64
	LastModified string
	ETag         string
}

// Listing is one parsed ListObjectsV2 page.
type Listing struct {
	Objects               []Object
	IsTruncated           bool
	NextContinuationToken string
}

// ParseListing extracts the <Contents> entries of a ListObjectsV2 response by
// scanning for the known element names. It does not validate the document; the
// body comes from the configured store, not from callers.
func ParseListing(body []byte) (*Listing, error) {
	doc := string(body)
	if !strings.Contains(doc, "<ListBucketResult") {
		return nil, &ParseError{Reason: "missing ListBucketResult element"}
	}

	listing := &Listing{}
	rest := doc
	for {
		start := strings.Index(rest, "<Contents>")
		if start < 0 {
			break
		}
		rest = rest[start+len("<Contents>"):]
		end := strings.Index(rest, "</Contents>")
		if end < 0 {
			return nil, &ParseError{Reason: "unterminated Contents element"}
		}
		block := rest[:end]
		rest = rest[end+len("</Contents>"):]

		obj, err := parseContents(block)
		if err != nil {
			return nil, err
		}
		listing.Objects = append(listing.Objects, obj)
	}

	listing.IsTruncated = strings.EqualFold(element(doc, "IsTruncated"), "true")
	listing.NextContinuationToken = unescapeXML(element(doc, "NextContinuationToken"))
	return listing, nil
}

func parseContents(block string) (Object, error) {
	key := element(block, "Key")
	if key == "" {
		return Object{}, &ParseError{Reason: "Contents entry without Key"}
	}
	obj := Object{
		Key:          unescapeXML(key),
		LastModified: element(block, "LastModified"),
		ETag:         strings.Trim(unescapeXML(element(block, "ETag")), `"`),
	}
	if raw := element(block, "Size"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Object{}, &ParseError{Reason: "invalid Size " + strconv.Quote(raw)}
		}
		obj.Size = size
	}
	return obj, nil
}

// element returns the trimmed text of the first <name>...</name> in s.
func element(s, name string) string {
	open := "<" + name + ">"
	start := strings.Index(s, open)
	if start < 0 {
		return ""
	}
	s = s[start+len(open):]
	end := strings.Index(s, "</"+name+">")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(s[:end])
}

var xmlEntities = map[string]string{
	"amp":  "&",
	"lt":   "<",
	"gt":   ">",
	"quot": `"`,
	"apos": "'",
}

// unescapeXML decodes the predefined entities and decimal or hex character
// references (&#39; &#x27;). Anything it does not recognise is kept verbatim.
func unescapeXML(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for {
		i := strings.IndexByte(s, '&')
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s = s[i:]
		end := strings.IndexByte(s, ';')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		if decoded, ok := decodeEntity(s[1:end]); ok {
			b.WriteString(decoded)
			s = s[end+1:]
			continue
		}
		b.WriteByte('&')
		s = s[1:]
	}
}

func decodeEntity(name string) (string, bool) {
	if v, ok := xmlEntities[name]; ok {
		return v, true
	}
	num, ok := strings.CutPrefix(name, "#")
	if !ok || num == "" {
		return "", false
	}
	base := 10
	if hex, ok := strings.CutPrefix(num, "x"); ok {
		num, base = hex, 16
	}
	n, err := strconv.ParseUint(num, base, 32)
	if err != nil || !utf8.ValidRune(rune(n)) {
		return "", false
	}
	return string(rune(n)), true
}
