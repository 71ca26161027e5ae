package summarizer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// minWords keeps captions and bylines out of the bullets when the article
// has enough real sentences.
const minWords = 5

var sentenceEnd = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+`)

var stopwords = toSet(`a about above after again against all am an and any are as at be because been
before being below between both but by can did do does doing down during each few for from further had
has have having he her here hers herself him himself his how i if in into is it its itself just me more
most my myself no nor not now of off on once only or other our ours ourselves out over own same she
should so some such than that the their theirs them themselves then there these they this those through
to too under until up very was we were what when where which while who whom why will with would you your
yours yourself yourselves said says also one two new`)

func toSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

type sentence struct {
	text      string
	paragraph int
	position  int
	words     []string
}

type rankFunc func(sentences []sentence, n int) []int

var algorithms = map[string]rankFunc{
	AlgorithmFrequency: rankByFrequency,
	AlgorithmLead:      rankLead,
}

// Algorithms lists the supported algorithm identifiers.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func buildSentences(paragraphs []string) []sentence {
	var out []sentence
	for pi, p := range paragraphs {
		for _, s := range splitSentences(p) {
			out = append(out, sentence{text: s, paragraph: pi, position: len(out), words: tokenize(s)})
		}
	}
	return out
}

// candidates returns the indexes long enough to be bullets, or every index
// when nothing qualifies.
func candidates(sentences []sentence) []int {
	var idx []int
	for i, s := range sentences {
		if len(s.words) >= minWords {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		for i := range sentences {
			idx = append(idx, i)
		}
	}
	return idx
}

func rankLead(sentences []sentence, n int) []int {
	idx := candidates(sentences)
	if len(idx) > n {
		idx = idx[:n]
	}
	return idx
}

// rankByFrequency scores each sentence by the average normalised frequency
// of its content words and keeps the n best, in document order.
func rankByFrequency(sentences []sentence, n int) []int {
	freq := make(map[string]float64)
	var top float64
	for _, s := range sentences {
		for _, w := range s.words {
			if stopwords[w] {
				continue
			}
			freq[w]++
			if freq[w] > top {
				top = freq[w]
			}
		}
	}
	if top == 0 {
		return rankLead(sentences, n)
	}

	idx := candidates(sentences)
	scores := make(map[int]float64, len(idx))
	for _, i := range idx {
		var total float64
		var count int
		for _, w := range sentences[i].words {
			if stopwords[w] {
				continue
			}
			total += freq[w] / top
			count++
		}
		if count > 0 {
			scores[i] = total / float64(count)
		}
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	sort.Ints(idx)
	return idx
}
