package memory

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// termVector is a sparse TF-IDF vector keyed by term id, with its length
// computed once.
type termVector struct {
	weights map[int]float64
	length  float64
}

func (v termVector) cosine(o termVector) float64 {
	if v.length == 0 || o.length == 0 {
		return 0
	}
	small, large := v.weights, o.weights
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for id, w := range small {
		dot += w * large[id]
	}
	return dot / (v.length * o.length)
}

// corpus ranks stored failure signatures against a query. Term frequency is
// sublinear (1 + ln tf) so a repeated stack frame does not dominate.
type corpus struct {
	terms map[string]int
	idf   []float64
	docs  []termVector
}

// tokenize lower-cases, strips combining marks and splits on anything that
// is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(stripMarks(strings.ToLower(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stripMarks(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if !unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func newCorpus(texts []string) *corpus {
	c := &corpus{terms: make(map[string]int)}
	counts := make([]map[int]int, len(texts))
	var docFreq []int
	for i, text := range texts {
		counts[i] = make(map[int]int)
		for _, tok := range tokenize(text) {
			id, ok := c.terms[tok]
			if !ok {
				id = len(c.terms)
				c.terms[tok] = id
				docFreq = append(docFreq, 0)
			}
			if counts[i][id] == 0 {
				docFreq[id]++
			}
			counts[i][id]++
		}
	}

	c.idf = make([]float64, len(docFreq))
	for id, df := range docFreq {
		c.idf[id] = 1 + math.Log(float64(len(texts))/float64(df))
	}
	c.docs = make([]termVector, len(texts))
	for i, tf := range counts {
		c.docs[i] = c.weigh(tf)
	}
	return c
}

func (c *corpus) weigh(tf map[int]int) termVector {
	v := termVector{weights: make(map[int]float64, len(tf))}
	var sum float64
	for id, n := range tf {
		w := (1 + math.Log(float64(n))) * c.idf[id]
		v.weights[id] = w
		sum += w * w
	}
	v.length = math.Sqrt(sum)
	return v
}

// rank returns the indices of up to k documents with positive similarity to
// query, best first. Equal scores keep corpus order.
func (c *corpus) rank(query string, k int) []int {
	if k <= 0 || len(c.docs) == 0 {
		return nil
	}
	tf := make(map[int]int)
	for _, tok := range tokenize(query) {
		if id, ok := c.terms[tok]; ok {
			tf[id]++
		}
	}
	if len(tf) == 0 {
		return nil
	}
	q := c.weigh(tf)

	type hit struct {
		doc   int
		score float64
	}
	var hits []hit
	for i, d := range c.docs {
		if s := q.cosine(d); s > 0 {
			hits = append(hits, hit{i, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out
}
