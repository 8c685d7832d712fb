package corpus

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

// Doc is a filtered document ready for text processing.
type Doc struct {
	ID   string
	Text string
}

// Meta is the sidecar data kept for exemplar lookup.
type Meta struct {
	URL       string
	Domain    string
	Title     string
	FetchedAt time.Time
}

// Corpus is the loader output: documents in fetch order plus their sidecar
// metadata keyed by document id.
type Corpus struct {
	Docs []Doc
	Meta map[string]Meta
}

// Texts returns the document texts in corpus order.
func (c Corpus) Texts() []string {
	texts := make([]string, len(c.Docs))
	for i, d := range c.Docs {
		texts[i] = d.Text
	}
	return texts
}

// FilterStats counts why candidate records were dropped.
type FilterStats struct {
	Candidates   int
	Malformed    int
	Empty        int
	ErrorMarker  int
	TooShort     int
	Duplicate    int
	DomainCapped int
	Kept         int
}

// placeholderPrefixLimit bounds how long a text starting with an error
// marker may be and still count as a placeholder.
const placeholderPrefixLimit = 200

var nullBodies = map[string]struct{}{
	"null": {}, "none": {}, "nan": {}, "n/a": {}, "undefined": {},
}

// Filter drops malformed, placeholder, and short records and applies the
// per-domain diversity cap.
type Filter struct {
	MinChars     int
	MaxPerDomain int // 0 disables the cap
	MinDocuments int
	ErrorMarkers []string
	Dedupe       bool
}

type candidate struct {
	rec    Record
	text   string
	title  string
	domain string
}

// Apply filters records. Survivors keep first-seen-by-fetch-time order
// (ties broken by id). Fewer than MinDocuments survivors (at least one) is
// ErrInsufficientCorpus.
func (f Filter) Apply(records []Record) (Corpus, FilterStats, error) {
	stats := FilterStats{Candidates: len(records)}
	markers := make([]string, 0, len(f.ErrorMarkers))
	for _, m := range f.ErrorMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}

	seenID := make(map[string]struct{}, len(records))
	var cands []candidate
	for _, rec := range records {
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			stats.Malformed++
			continue
		}
		if _, dup := seenID[id]; dup {
			stats.Malformed++
			continue
		}
		seenID[id] = struct{}{}

		raw := strings.TrimSpace(rec.Text)
		if raw == "" {
			stats.Empty++
			continue
		}
		if isPlaceholder(raw, markers) {
			stats.ErrorMarker++
			continue
		}

		text, title := cleanText(raw)
		if text == "" {
			stats.Empty++
			continue
		}
		if utf8.RuneCountInString(text) < f.MinChars {
			stats.TooShort++
			continue
		}

		rec.ID = id
		cands = append(cands, candidate{rec: rec, text: text, title: title, domain: domainOf(rec)})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].rec, cands[j].rec
		if !a.FetchedAt.Equal(b.FetchedAt) {
			return a.FetchedAt.Before(b.FetchedAt)
		}
		return a.ID < b.ID
	})

	out := Corpus{Meta: make(map[string]Meta, len(cands))}
	seenText := make(map[string]struct{})
	perDomain := make(map[string]int)
	for _, c := range cands {
		if f.Dedupe {
			key := strings.ToLower(strings.Join(strings.Fields(c.text), " "))
			if _, dup := seenText[key]; dup {
				stats.Duplicate++
				continue
			}
			seenText[key] = struct{}{}
		}
		if f.MaxPerDomain > 0 {
			if perDomain[c.domain] >= f.MaxPerDomain {
				stats.DomainCapped++
				continue
			}
			perDomain[c.domain]++
		}

		out.Docs = append(out.Docs, Doc{ID: c.rec.ID, Text: c.text})
		out.Meta[c.rec.ID] = Meta{
			URL:       c.rec.URL,
			Domain:    c.domain,
			Title:     titleFor(c.title, c.text),
			FetchedAt: c.rec.FetchedAt,
		}
	}
	stats.Kept = len(out.Docs)

	minDocs := max(f.MinDocuments, 1)
	if stats.Kept < minDocs {
		return Corpus{}, stats, fmt.Errorf("%d of %d records usable, need %d: %w",
			stats.Kept, stats.Candidates, minDocs, internalerr.ErrInsufficientCorpus)
	}
	return out, stats, nil
}

func isPlaceholder(text string, markers []string) bool {
	lower := strings.ToLower(text)
	if _, ok := nullBodies[lower]; ok {
		return true
	}
	for _, m := range markers {
		if lower == m {
			return true
		}
		if strings.HasPrefix(lower, m) && utf8.RuneCountInString(lower) < placeholderPrefixLimit {
			return true
		}
	}
	return false
}

func domainOf(rec Record) string {
	d := strings.ToLower(strings.TrimSpace(rec.Domain))
	if d == "" && rec.URL != "" {
		if u, err := url.Parse(rec.URL); err == nil {
			d = strings.ToLower(u.Hostname())
		}
	}
	return strings.TrimPrefix(d, "www.")
}

const maxTitleRunes = 120

// titleFor prefers the page title and falls back to the first line of text.
func titleFor(title, text string) string {
	if title == "" {
		title, _, _ = strings.Cut(text, "\n")
	}
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	cut := string(runes[:maxTitleRunes])
	if i := strings.LastIndexByte(cut, ' '); i > maxTitleRunes/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
