// Package chunker splits document text into overlapping, bounded segments
// that keep track of the page they came from.
//
// Sizes and offsets are counted in runes, so a cut never lands inside a UTF-8
// sequence. The splitter prefers to end a chunk on a paragraph break, then a
// line break, then a space, and only falls back to a hard cut when the window
// has none of those.
package chunker

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Defaults used when a Splitter is built with zero values.
const (
	DefaultSize          = 2000
	DefaultOverlap       = 200
	DefaultMetadataBytes = 36000
)

var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

// Page is the extracted text of a single 1-based page.
type Page struct {
	Number int
	Text   string
}

// PageOffset marks the rune offset at which a page begins in a joined text.
type PageOffset struct {
	Page  int
	Start int
}

// Chunk is one segment ready for embedding.
type Chunk struct {
	Text       string
	PageNumber int
	Source     string
	// Start and End are rune offsets into the text that was split.
	Start int
	End   int
	// MetadataText is Text capped to the splitter's metadata byte budget.
	MetadataText string
}

// Splitter holds the chunking parameters. It is immutable and safe for
// concurrent use.
type Splitter struct {
	size          int
	overlap       int
	metadataBytes int
}

// New returns a Splitter. Non-positive values fall back to the defaults and an
// overlap that is not smaller than size is dropped to zero.
func New(size, overlap, metadataBytes int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = 0
	}
	if metadataBytes <= 0 {
		metadataBytes = DefaultMetadataBytes
	}
	return &Splitter{size: size, overlap: overlap, metadataBytes: metadataBytes}
}

// Size returns the maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the number of runes shared by consecutive chunks.
func (s *Splitter) Overlap() int { return s.overlap }

// Normalize collapses every whitespace run (newlines included) into a single
// space and trims the ends.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(b.String())
}

// SplitPages normalizes and splits each page on its own, so every chunk maps
// to exactly one page. Empty pages produce no chunks.
func (s *Splitter) SplitPages(source string, pages []Page) []Chunk {
	var out []Chunk
	for _, p := range pages {
		text := Normalize(p.Text)
		if text == "" {
			continue
		}
		for _, c := range s.Split(text, []PageOffset{{Page: p.Number, Start: 0}}) {
			c.Source = source
			out = append(out, c)
		}
	}
	return out
}

// Split cuts text into chunks and assigns each the page whose offset range
// contains the chunk start. offsets may be empty (page 0) and need not be
// sorted.
func (s *Splitter) Split(text string, offsets []PageOffset) []Chunk {
	rs := []rune(text)
	if len(rs) == 0 {
		return nil
	}
	pages := append([]PageOffset(nil), offsets...)
	sort.Slice(pages, func(i, j int) bool { return pages[i].Start < pages[j].Start })

	bounds := s.bounds(rs)
	out := make([]Chunk, 0, len(bounds))
	for _, b := range bounds {
		t := string(rs[b[0]:b[1]])
		out = append(out, Chunk{
			Text:         t,
			PageNumber:   pageAt(pages, b[0]),
			Start:        b[0],
			End:          b[1],
			MetadataText: TruncateBytes(t, s.metadataBytes),
		})
	}
	return out
}

// bounds returns [start,end) rune ranges. Every rune of rs lies in at least
// one range and consecutive ranges overlap by at most s.overlap runes.
func (s *Splitter) bounds(rs []rune) [][2]int {
	n := len(rs)
	var out [][2]int
	start := 0
	for start < n {
		if n-start <= s.size {
			out = append(out, [2]int{start, n})
			break
		}
		end := s.cut(rs, start)
		out = append(out, [2]int{start, end})

		next := end - s.overlap
		if next <= start {
			next = end
		}
		// Begin the overlap on a word when one starts inside it.
		if i := indexRune(rs[next:end], ' '); i >= 0 && next+i+1 < end {
			next += i + 1
		}
		start = next
	}
	return out
}

// cut picks the end of the chunk starting at start. The search window begins
// half a chunk in (and past the overlap) so every step makes real progress.
func (s *Splitter) cut(rs []rune, start int) int {
	limit := start + s.size
	lo := start + s.size/2
	if lo <= start+s.overlap {
		lo = start + s.overlap + 1
	}
	if lo >= limit {
		return limit
	}
	for _, sep := range separators {
		if i := lastIndex(rs[lo:limit], sep); i >= 0 {
			// The separator opens the next chunk's overlap rather than
			// trailing this one.
			if end := lo + i; end > start {
				return end
			}
		}
	}
	return limit
}

func pageAt(pages []PageOffset, pos int) int {
	if len(pages) == 0 {
		return 0
	}
	i := sort.Search(len(pages), func(i int) bool { return pages[i].Start > pos })
	if i == 0 {
		return pages[0].Page
	}
	return pages[i-1].Page
}

// TruncateBytes returns the longest prefix of s that fits in limit bytes without
// splitting a UTF-8 sequence.
func TruncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

func indexRune(rs []rune, r rune) int {
	for i, c := range rs {
		if c == r {
			return i
		}
	}
	return -1
}

func lastIndex(rs, sep []rune) int {
	for i := len(rs) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if rs[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
