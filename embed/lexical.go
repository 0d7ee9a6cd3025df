package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	// DefaultDim is the dimensionality used when none is configured.
	DefaultDim = 256

	// maxEmbedChars caps embedding input length. Longer texts are cut at a
	// word boundary; chunking keeps typical inputs well below this.
	maxEmbedChars = 24000

	// bigramWeight scales adjacent-token features relative to single tokens.
	bigramWeight = 0.5
)

// Lexical is a feature-hashing embedder. Tokens and adjacent token pairs are
// hashed into a fixed number of buckets with FNV-1a and the resulting vector
// is L2-normalized, so cosine similarity reflects weighted lexical overlap.
// Identical input always produces identical output.
type Lexical struct {
	dim int
}

// NewLexical creates a Lexical embedder with the given dimensionality.
// Non-positive dims fall back to DefaultDim.
func NewLexical(dim int) *Lexical {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Lexical{dim: dim}
}

// Dim returns the embedding dimensionality.
func (l *Lexical) Dim() int { return l.dim }

// Embed hashes the text's tokens and bigrams into l.dim buckets and returns
// the L2-normalized vector. Empty or all-stopword input yields a zero vector.
func (l *Lexical) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, l.dim)
	tokens := Tokenize(truncateForEmbed(text))
	for i, tok := range tokens {
		vec[bucket(tok, l.dim)] += 1
		if i > 0 {
			vec[bucket(tokens[i-1]+" "+tok, l.dim)] += bigramWeight
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order. A canceled context aborts the batch.
func (l *Lexical) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := l.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Tokenize lowercases the text, splits on non-alphanumeric runes, drops
// stopwords and single characters, and folds each token to its canonical
// form. Retrieval uses the same tokenization so query and chunk terms land
// in the same buckets.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []string
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		out = append(out, Fold(f))
	}
	return out
}

// Fold maps a token to its canonical form, collapsing plural and synonym
// variants ("automobiles" becomes "auto") so paraphrased queries still meet
// the source text in vector space.
func Fold(token string) string {
	if canon, ok := synonymFold[token]; ok {
		return canon
	}
	sing := singularize(token)
	if canon, ok := synonymFold[sing]; ok {
		return canon
	}
	return sing
}

// singularize strips common English plural suffixes. Deliberately light:
// irregular plurals pass through unchanged.
func singularize(token string) string {
	switch {
	case len(token) > 4 && strings.HasSuffix(token, "ies"):
		return token[:len(token)-3] + "y"
	case len(token) > 4 && strings.HasSuffix(token, "sses"):
		return token[:len(token)-2]
	case len(token) > 3 && strings.HasSuffix(token, "s") &&
		!strings.HasSuffix(token, "ss") &&
		!strings.HasSuffix(token, "us") &&
		!strings.HasSuffix(token, "is"):
		return token[:len(token)-1]
	}
	return token
}

func bucket(feature string, dim int) int {
	h := fnv.New32a()
	h.Write([]byte(feature))
	return int(h.Sum32() % uint32(dim))
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// truncateForEmbed caps input at maxEmbedChars, cutting at the last space to
// avoid hashing a split token.
func truncateForEmbed(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	cut := text[:maxEmbedChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

var stopwords = map[string]struct{}{
	"the": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "for": {}, "is": {}, "are": {}, "be": {}, "as": {}, "at": {},
	"by": {}, "with": {}, "that": {}, "this": {}, "it": {}, "its": {},
	"from": {}, "was": {}, "were": {}, "will": {}, "shall": {}, "has": {},
	"have": {}, "had": {}, "not": {}, "but": {}, "if": {}, "any": {},
	"all": {}, "such": {}, "other": {}, "under": {}, "which": {},
}

// synonymFold collapses domain synonyms into one canonical token. Kept small
// on purpose: only high-frequency variants that appear in both policy text
// and user questions.
var synonymFold = map[string]string{
	"automobile":    "auto",
	"vehicle":       "auto",
	"car":           "auto",
	"home":          "dwelling",
	"house":         "dwelling",
	"residence":     "dwelling",
	"carrier":       "insurer",
	"policyholder":  "insured",
	"payout":        "payment",
	"reimbursement": "payment",
}
