// Package simulate produces deterministic trademark analysis results so the
// dispatch and correlation pipeline can run end to end without the real
// analysis service. Its findings are not legal advice or real search results.
package simulate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/dontdude/markcheck/internal/domain"
)

// Mark is a registered trademark in the simulated register.
type Mark struct {
	Name         string
	Category     string
	RegisteredOn string // YYYY-MM-DD, empty when unknown
}

// Catalog is the simulated trademark register.
type Catalog struct {
	Marks    []Mark
	Negative []string // words with a negative connotation
}

// DefaultCatalog returns a small fixed register.
func DefaultCatalog() Catalog {
	return Catalog{
		Marks: []Mark{
			{Name: "Acme", Category: "cosmetics", RegisteredOn: "2015-03-02"},
			{Name: "Acme Labs", Category: "software", RegisteredOn: "2019-11-20"},
			{Name: "Blue Harbor", Category: "beverages", RegisteredOn: "2012-06-14"},
			{Name: "Nimbus", Category: "software"},
			{Name: "Kettle Crown", Category: "food", RegisteredOn: "2021-01-08"},
		},
		Negative: []string{"bad", "dead", "toxic", "scam", "ugly"},
	}
}

// Analyze computes the results for one work envelope.
func (c Catalog) Analyze(env domain.WorkEnvelope) domain.Results {
	tokens := tokenize(env.Name)
	return domain.Results{
		FindSameName:      c.sameName(env.Name),
		FindSimilarName:   c.similarName(env.Name, tokens),
		FindSimilarPronun: c.similarPronunciation(env.Name),
		Tokenize:          domain.TokenizeResult{Tokens: tokens},
		CheckElastic:      c.connotation(tokens),
		SimilarityScore:   similarity(env.Name, env.ProductCategory),
	}
}

func (c Catalog) sameName(name string) domain.CheckResult {
	for _, m := range c.Marks {
		if strings.EqualFold(strings.TrimSpace(name), m.Name) {
			return domain.CheckResult{
				Result: true,
				Msg:    fmt.Sprintf("%q is already registered as a trademark and cannot be registered", m.Name),
			}
		}
	}
	return domain.CheckResult{Result: false, Msg: ""}
}

func (c Catalog) similarName(name string, tokens []string) domain.MatchResult {
	var rows [][]json.RawMessage
	for _, m := range c.Marks {
		if strings.EqualFold(strings.TrimSpace(name), m.Name) {
			continue
		}
		if overlap(tokens, tokenize(m.Name)) == 0 {
			continue
		}
		rows = append(rows, row(m.Name, m.Category, date(m.RegisteredOn)))
	}
	if len(rows) == 0 {
		return domain.MatchResult{Result: false, Msg: "no similar names found"}
	}
	return domain.MatchResult{Result: true, Data: rows}
}

func (c Catalog) similarPronunciation(name string) domain.MatchResult {
	key := skeleton(name)
	candidate := []rune(normalize(name))
	var rows [][]json.RawMessage
	for _, m := range c.Marks {
		if key == "" || skeleton(m.Name) != key || strings.EqualFold(strings.TrimSpace(name), m.Name) {
			continue
		}
		other := []rune(normalize(m.Name))
		dist := editDistance(string(candidate), string(other))
		score := round(1 - float64(dist)/float64(max(len(candidate), len(other))))
		rows = append(rows, row(m.Name, score, m.Category, date(m.RegisteredOn)))
	}
	if len(rows) == 0 {
		return domain.MatchResult{Result: false, Msg: "no similar pronunciations found"}
	}
	return domain.MatchResult{Result: true, Data: rows}
}

func (c Catalog) connotation(tokens []string) domain.ConnotationResult {
	out := domain.ConnotationResult{NegativeTokens: []domain.TokenSentiment{}}
	for _, tok := range tokens {
		for _, neg := range c.Negative {
			if tok == neg {
				out.NegativeTokens = append(out.NegativeTokens, domain.TokenSentiment{Name: tok, Positive: 0.1, Negative: 0.9})
			}
		}
	}
	out.Result = len(out.NegativeTokens) > 0
	return out
}

// date returns nil for unknown dates so the row carries a JSON null.
func date(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func row(values ...any) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		b, _ := json.Marshal(v) // strings, numbers and nil only
		out[i] = b
	}
	return out
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if fields == nil {
		return []string{}
	}
	return fields
}

func normalize(s string) string {
	return strings.Join(tokenize(s), "")
}

// skeleton drops vowels and collapses repeats, a crude sound-alike key.
func skeleton(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range normalize(s) {
		if strings.ContainsRune("aeiouy", r) || r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

func overlap(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

// similarity is the Jaccard index of the character bigrams of a and b.
func similarity(a, b string) float64 {
	x, y := bigrams(normalize(a)), bigrams(normalize(b))
	if len(x) == 0 || len(y) == 0 {
		return 0
	}
	inter := 0
	for g := range x {
		if _, ok := y[g]; ok {
			inter++
		}
	}
	union := len(x) + len(y) - inter
	return round(float64(inter) / float64(union))
}

func bigrams(s string) map[string]struct{} {
	rs := []rune(s)
	out := make(map[string]struct{})
	for i := 0; i+1 < len(rs); i++ {
		out[string(rs[i:i+2])] = struct{}{}
	}
	return out
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func round(f float64) float64 {
	return math.Round(f*10000) / 10000
}
