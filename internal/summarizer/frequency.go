package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"ragbot/internal/chunker"
)

// DefaultMaxRunes caps the digest so it fits in a chat reply.
const DefaultMaxRunes = 400

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// FrequencySummarizer builds the short local digest shown after ingestion,
// without any model. Sentences are the ones the chunker cuts at, each scored
// by how common its distinct content words are across the document.
type FrequencySummarizer struct {
	maxRunes  int
	stopwords map[string]struct{}
}

// NewFrequencySummarizer returns a summarizer whose digests are at most
// maxRunes long. Non-positive values use DefaultMaxRunes.
func NewFrequencySummarizer(maxRunes int) *FrequencySummarizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &FrequencySummarizer{maxRunes: maxRunes, stopwords: defaultStopwords()}
}

type sentence struct {
	text  string
	runes int
	words []string // distinct content words
	score float64
}

// Summarize picks up to maxSentences of the best scored sentences, in document
// order, without exceeding the rune cap. A first pick longer than the cap is
// cut at a word boundary.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	parts := chunker.Sentences(text)
	if len(parts) == 0 {
		return "", nil
	}

	sentences := make([]sentence, len(parts))
	weight := map[string]float64{}
	for i, p := range parts {
		all := wordRe.FindAllString(strings.ToLower(p), -1)
		seen := map[string]struct{}{}
		for _, w := range all {
			if _, stop := s.stopwords[w]; stop || utf8.RuneCountInString(w) < 2 {
				continue
			}
			weight[w]++
			if _, dup := seen[w]; !dup {
				seen[w] = struct{}{}
				sentences[i].words = append(sentences[i].words, w)
			}
		}
		sentences[i].text = p
		sentences[i].runes = utf8.RuneCountInString(p)
		if len(all) > 0 {
			sentences[i].score = math.Sqrt(float64(len(all)))
		}
	}
	top := 0.0
	for _, v := range weight {
		top = math.Max(top, v)
	}
	for i := range sentences {
		sum := 0.0
		for _, w := range sentences[i].words {
			sum += weight[w] / top
		}
		if sentences[i].score > 0 {
			sentences[i].score = sum / sentences[i].score
		}
	}

	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sentences[order[a]].score > sentences[order[b]].score })

	var picked []int
	used := 0
	for _, idx := range order {
		if len(picked) == maxSentences {
			break
		}
		n := sentences[idx].runes
		if len(picked) > 0 {
			n++ // joining space
		}
		if used+n > s.maxRunes {
			if len(picked) == 0 {
				return truncate(sentences[idx].text, s.maxRunes), nil
			}
			continue
		}
		picked = append(picked, idx)
		used += n
	}
	sort.Ints(picked)
	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = sentences[idx].text
	}
	return strings.Join(out, " "), nil
}

// truncate cuts text to at most limit runes, ending on a word boundary when
// there is one, and marks the cut with an ellipsis.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	cut := string(runes[:limit-1])
	if i := strings.LastIndexAny(cut, " \t\n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \t\n,;:") + "…"
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "has", "have", "had", "which", "who", "not", "no",
		"во", "не", "что", "он", "на", "со", "как", "то", "все", "она", "так", "его", "но", "да", "же", "за", "бы", "по", "от", "из", "ли", "это", "для", "при", "был", "была", "были", "есть", "они", "их", "или", "также",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
