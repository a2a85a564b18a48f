package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

// ErrUnknownFormat is returned when the root element is not rss, feed or
// rdf:RDF.
var ErrUnknownFormat = errors.New("unrecognised feed format")

// Kind identifies a feed dialect.
type Kind string

const (
	KindRSS2 Kind = "rss2"
	KindAtom Kind = "atom"
	KindRDF  Kind = "rdf"
)

// Document is one parsed feed: *Rss2Feed, *AtomFeed or *RdfFeed.
type Document interface {
	Kind() Kind
}

// Rss2Feed is an RSS 2.0 document (rss/channel/item).
type Rss2Feed struct {
	*rss.Feed
}

// AtomFeed is an Atom document (feed/entry).
type AtomFeed struct {
	*atom.Feed
}

// RdfFeed is an RSS 1.0 document (rdf:RDF/item).
type RdfFeed struct {
	*rss.Feed
}

func (*Rss2Feed) Kind() Kind {
	return KindRSS2
}

func (*AtomFeed) Kind() Kind {
	return KindAtom
}

func (*RdfFeed) Kind() Kind {
	return KindRDF
}

// DetectKind reads tokens up to the root element and classifies it.
func DetectKind(body []byte) (Kind, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	// Only the ASCII root name matters here; the real parse handles charsets.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) {
		return r, nil
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrUnknownFormat
			}
			return "", fmt.Errorf("detect feed kind: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch strings.ToLower(start.Name.Local) {
		case "rss":
			return KindRSS2, nil
		case "feed":
			return KindAtom, nil
		case "rdf":
			return KindRDF, nil
		default:
			return "", fmt.Errorf("%w: root <%s>", ErrUnknownFormat, start.Name.Local)
		}
	}
}

// Parse detects the kind of body and decodes it with the matching parser.
func Parse(body []byte) (Document, error) {
	kind, err := DetectKind(body)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindAtom:
		parser := &atom.Parser{}
		f, parseErr := parser.Parse(bytes.NewReader(body))
		if parseErr != nil {
			return nil, fmt.Errorf("parse atom: %w", parseErr)
		}
		return &AtomFeed{Feed: f}, nil
	case KindRDF:
		parser := &rss.Parser{}
		f, parseErr := parser.Parse(bytes.NewReader(body))
		if parseErr != nil {
			return nil, fmt.Errorf("parse rdf: %w", parseErr)
		}
		return &RdfFeed{Feed: f}, nil
	default:
		parser := &rss.Parser{}
		f, parseErr := parser.Parse(bytes.NewReader(body))
		if parseErr != nil {
			return nil, fmt.Errorf("parse rss: %w", parseErr)
		}
		return &Rss2Feed{Feed: f}, nil
	}
}

// item is the dialect-neutral view of one entry.
type item struct {
	id         string
	link       string
	title      string
	content    string
	author     string
	categories []string
	published  *time.Time
}

// header is the dialect-neutral view of the channel.
type header struct {
	title    string
	language string
}

func flatten(doc Document) (header, []item) {
	switch d := doc.(type) {
	case *Rss2Feed:
		return header{title: d.Title, language: rssLanguage(d.Feed)}, rssItems(d.Items)
	case *RdfFeed:
		return header{title: d.Title, language: rssLanguage(d.Feed)}, rssItems(d.Items)
	case *AtomFeed:
		return header{title: d.Title, language: d.Language}, atomItems(d.Entries)
	default:
		return header{}, nil
	}
}

func rssLanguage(f *rss.Feed) string {
	if f.Language != "" {
		return f.Language
	}
	if f.DublinCoreExt != nil && len(f.DublinCoreExt.Language) > 0 {
		return f.DublinCoreExt.Language[0]
	}
	return ""
}

func rssItems(in []*rss.Item) []item {
	out := make([]item, 0, len(in))
	for _, it := range in {
		if it == nil {
			continue
		}
		entry := item{
			link:      strings.TrimSpace(it.Link),
			title:     it.Title,
			content:   it.Content,
			author:    it.Author,
			published: it.PubDateParsed,
		}
		if entry.content == "" {
			entry.content = it.Description
		}
		if it.GUID != nil {
			entry.id = strings.TrimSpace(it.GUID.Value)
		}
		for _, c := range it.Categories {
			if c != nil && c.Value != "" {
				entry.categories = append(entry.categories, c.Value)
			}
		}
		if dc := it.DublinCoreExt; dc != nil {
			if entry.author == "" && len(dc.Creator) > 0 {
				entry.author = dc.Creator[0]
			}
			if entry.published == nil && len(dc.Date) > 0 {
				entry.published = parseDate(dc.Date[0])
			}
			entry.categories = append(entry.categories, dc.Subject...)
		}
		out = append(out, entry)
	}
	return out
}

func atomItems(in []*atom.Entry) []item {
	out := make([]item, 0, len(in))
	for _, e := range in {
		if e == nil {
			continue
		}
		entry := item{
			id:        strings.TrimSpace(e.ID),
			title:     e.Title,
			content:   e.Summary,
			published: e.PublishedParsed,
		}
		if e.Content != nil && e.Content.Value != "" {
			entry.content = e.Content.Value
		}
		if entry.published == nil {
			entry.published = e.UpdatedParsed
		}
		entry.link = atomLink(e.Links)
		if len(e.Authors) > 0 && e.Authors[0] != nil {
			entry.author = e.Authors[0].Name
		}
		for _, c := range e.Categories {
			if c == nil {
				continue
			}
			label := c.Label
			if label == "" {
				label = c.Term
			}
			if label != "" {
				entry.categories = append(entry.categories, label)
			}
		}
		out = append(out, entry)
	}
	return out
}

// atomLink prefers rel="alternate" (or no rel) over other relations.
func atomLink(links []*atom.Link) string {
	var fallback string
	for _, l := range links {
		if l == nil || l.Href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
		if fallback == "" {
			fallback = strings.TrimSpace(l.Href)
		}
	}
	return fallback
}

func parseDate(s string) *time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return &t
		}
	}
	return nil
}
