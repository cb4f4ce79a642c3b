package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// MaxFeatures caps the fitted vocabulary size.
const MaxFeatures = 50000

// tokenPattern matches runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// SparseVector is a sorted sparse row of term weights.
type SparseVector struct {
	Indices []int     `json:"i"`
	Values  []float64 `json:"v"`
}

// Dot returns the inner product of two sparse vectors.
func (s SparseVector) Dot(o SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(s.Indices) && j < len(o.Indices) {
		switch {
		case s.Indices[i] == o.Indices[j]:
			sum += s.Values[i] * o.Values[j]
			i++
			j++
		case s.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Vectorizer is a fitted TF-IDF transform.
type Vectorizer struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := englishStopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Fit learns the vocabulary and IDF weights from texts and returns the vectorizer
// together with the transformed rows. The vocabulary keeps the maxFeatures most
// frequent terms across the corpus, ties broken alphabetically.
func Fit(texts []string, maxFeatures int) (*Vectorizer, []SparseVector) {
	tokens := make([][]string, len(texts))
	total := map[string]int{}
	for i, text := range texts {
		tokens[i] = tokenize(text)
		for _, tok := range tokens[i] {
			total[tok]++
		}
	}

	terms := make([]string, 0, len(total))
	for term := range total {
		terms = append(terms, term)
	}
	if maxFeatures > 0 && len(terms) > maxFeatures {
		sort.Slice(terms, func(a, b int) bool {
			if total[terms[a]] != total[terms[b]] {
				return total[terms[a]] > total[terms[b]]
			}
			return terms[a] < terms[b]
		})
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	for i, term := range terms {
		vocab[term] = i
	}

	df := make([]int, len(terms))
	for _, doc := range tokens {
		seen := map[int]struct{}{}
		for _, tok := range doc {
			idx, ok := vocab[tok]
			if !ok {
				continue
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			df[idx]++
		}
	}

	n := float64(len(texts))
	idf := make([]float64, len(terms))
	for i := range idf {
		idf[i] = math.Log((1+n)/(1+float64(df[i]))) + 1
	}

	v := &Vectorizer{Vocabulary: vocab, IDF: idf}
	rows := make([]SparseVector, len(texts))
	for i, doc := range tokens {
		rows[i] = v.weigh(doc)
	}
	return v, rows
}

// Transform maps text into the fitted vector space.
func (v *Vectorizer) Transform(text string) SparseVector {
	return v.weigh(tokenize(text))
}

func (v *Vectorizer) weigh(tokens []string) SparseVector {
	counts := map[int]float64{}
	for _, tok := range tokens {
		if idx, ok := v.Vocabulary[tok]; ok {
			counts[idx]++
		}
	}
	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	var norm float64
	for i, idx := range indices {
		w := counts[idx] * v.IDF[idx]
		values[i] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range values {
			values[i] /= norm
		}
	}
	return SparseVector{Indices: indices, Values: values}
}
