package chunker

import (
	"strings"
	"unicode"

	"ragbot/internal/domain"
)

// Default sizes are measured in runes.
const (
	DefaultSize    = 300
	DefaultOverlap = 50
)

// defaultLevels are tried coarsest first: paragraph, line, sentence, word.
// Below the last level text is cut at fixed rune counts.
var defaultLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "… ", ".\t", "!\t", "?\t"},
	{" ", "\t"},
}

// RecursiveChunker splits text on the coarsest separator that keeps every piece
// within size, then packs pieces greedily into chunks. Each chunk after the
// first starts overlap runes before the end of the previous one, moved back to
// a word boundary when one is near.
type RecursiveChunker struct {
	size    int
	overlap int
	snap    int
	levels  [][][]rune
}

type span struct{ start, end int }

func NewRecursiveChunker(size, overlap int) *RecursiveChunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	snap := size/2 - overlap
	if snap > overlap {
		snap = overlap
	}
	if snap < 0 {
		snap = 0
	}
	levels := make([][][]rune, len(defaultLevels))
	for i, seps := range defaultLevels {
		levels[i] = runeSeps(seps)
	}
	return &RecursiveChunker{size: size, overlap: overlap, snap: snap, levels: levels}
}

func runeSeps(groups ...[]string) [][]rune {
	var out [][]rune
	for _, seps := range groups {
		for _, s := range seps {
			out = append(out, []rune(s))
		}
	}
	return out
}

// sentenceSeps are the paragraph, line and sentence separators together.
var sentenceSeps = runeSeps(defaultLevels[0], defaultLevels[1], defaultLevels[2])

// Sentences splits text wherever the chunker would cut at sentence level or
// coarser. Surrounding whitespace is trimmed and blank pieces are dropped.
func Sentences(text string) []string {
	runes := []rune(text)
	cuts := append(cutPoints(runes, span{0, len(runes)}, sentenceSeps), len(runes))
	var out []string
	prev := 0
	for _, cut := range cuts {
		if s := strings.TrimSpace(string(runes[prev:cut])); s != "" {
			out = append(out, s)
		}
		prev = cut
	}
	return out
}

// Split returns chunks whose texts are exact substrings of text. Text that is
// empty or whitespace only yields no chunks.
func (c *RecursiveChunker) Split(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	pieces := c.split(runes, span{0, len(runes)}, 0)
	return c.merge(runes, pieces)
}

func (c *RecursiveChunker) split(runes []rune, s span, level int) []span {
	if s.end-s.start <= c.size {
		return []span{s}
	}
	for ; level < len(c.levels); level++ {
		cuts := cutPoints(runes, s, c.levels[level])
		if len(cuts) == 0 {
			continue
		}
		cuts = append(cuts, s.end)
		out := make([]span, 0, len(cuts))
		prev := s.start
		for _, cut := range cuts {
			p := span{prev, cut}
			if p.end-p.start <= c.size {
				out = append(out, p)
			} else {
				out = append(out, c.split(runes, p, level+1)...)
			}
			prev = cut
		}
		return out
	}
	out := make([]span, 0, (s.end-s.start)/c.size+1)
	for i := s.start; i < s.end; i += c.size {
		end := i + c.size
		if end > s.end {
			end = s.end
		}
		out = append(out, span{i, end})
	}
	return out
}

// cutPoints returns the offsets right after each separator inside s, excluding s.end.
func cutPoints(runes []rune, s span, seps [][]rune) []int {
	var cuts []int
	for i := s.start; i < s.end; {
		n := matchAny(runes[i:s.end], seps)
		if n == 0 {
			i++
			continue
		}
		i += n
		if i < s.end {
			cuts = append(cuts, i)
		}
	}
	return cuts
}

func matchAny(r []rune, seps [][]rune) int {
	for _, sep := range seps {
		if len(sep) == 0 || len(sep) > len(r) {
			continue
		}
		ok := true
		for j := range sep {
			if r[j] != sep[j] {
				ok = false
				break
			}
		}
		if ok {
			return len(sep)
		}
	}
	return 0
}

func (c *RecursiveChunker) merge(runes []rune, pieces []span) []domain.Chunk {
	var chunks []domain.Chunk
	start, i := 0, 0
	for i < len(pieces) {
		// The next piece must fit. Cut it finer first and give up overlap
		// only when it holds no separator at all.
		for pieces[i].end-start > c.size {
			sub := c.refine(runes, pieces[i])
			if sub == nil {
				start = pieces[i].end - c.size
				break
			}
			pieces = append(append(append(make([]span, 0, len(pieces)+len(sub)), pieces[:i]...), sub...), pieces[i+1:]...)
		}
		end := pieces[i].start
		for i < len(pieces) && pieces[i].end-start <= c.size {
			end = pieces[i].end
			i++
		}
		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if i == len(pieces) {
			break
		}
		start = c.overlapStart(runes, start, end)
	}
	return chunks
}

// refine cuts p at the coarsest separator level found inside it. It returns
// nil when p has no separator.
func (c *RecursiveChunker) refine(runes []rune, p span) []span {
	for _, seps := range c.levels {
		cuts := cutPoints(runes, p, seps)
		if len(cuts) == 0 {
			continue
		}
		out := make([]span, 0, len(cuts)+1)
		prev := p.start
		for _, cut := range append(cuts, p.end) {
			out = append(out, span{prev, cut})
			prev = cut
		}
		return out
	}
	return nil
}

func (c *RecursiveChunker) overlapStart(runes []rune, prevStart, prevEnd int) int {
	next := prevEnd - c.overlap
	if next <= prevStart {
		return prevStart
	}
	floor := next - c.snap
	if floor < prevStart {
		floor = prevStart
	}
	for p := next; p > floor; p-- {
		if unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return next
}
