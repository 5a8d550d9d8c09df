package sentiment

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Punctuation is the set of characters removed before splitting text into words
const Punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var punctuationRemover = strings.NewReplacer(punctuationPairs()...)

func punctuationPairs() []string {
	pairs := make([]string, 0, 2*len(Punctuation))
	for _, r := range Punctuation {
		pairs = append(pairs, string(r), "")
	}
	return pairs
}

// FeatureSet maps a word to whether it is present in a text
type FeatureSet map[string]bool

// FeatureExtractor turns comment text into classifier features.
// With a vocabulary, every vocabulary word is a feature and only those
// present in the text are true. Without one, every word of the text is a
// true feature.
type FeatureExtractor struct {
	vocabulary []string
	known      map[string]bool
	locale     language.Tag
}

// NewFeatureExtractor returns an extractor over vocabulary. An empty locale
// lowercases with undetermined language rules.
func NewFeatureExtractor(vocabulary []string, locale string) (*FeatureExtractor, error) {
	tag := language.Und
	if locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("invalid locale '%v': %w", locale, err)
		}
		tag = parsed
	}
	extractor := &FeatureExtractor{
		known:  make(map[string]bool, len(vocabulary)),
		locale: tag,
	}
	for _, word := range vocabulary {
		if !extractor.known[word] {
			extractor.known[word] = true
			extractor.vocabulary = append(extractor.vocabulary, word)
		}
	}
	return extractor, nil
}

// Vocabulary returns the base vocabulary, empty for bag-of-words extraction.
func (extractor *FeatureExtractor) Vocabulary() []string {
	return extractor.vocabulary
}

// Words strips punctuation, lowercases and splits text on whitespace.
func (extractor *FeatureExtractor) Words(text string) []string {
	// a Caser keeps state, so each call gets its own
	lower := cases.Lower(extractor.locale)
	return strings.Fields(lower.String(punctuationRemover.Replace(text)))
}

// Extract builds the feature set of text.
func (extractor *FeatureExtractor) Extract(text string) FeatureSet {
	words := extractor.Words(text)
	if len(extractor.vocabulary) == 0 {
		features := make(FeatureSet, len(words))
		for _, word := range words {
			features[word] = true
		}
		return features
	}
	features := make(FeatureSet, len(extractor.vocabulary))
	for _, word := range extractor.vocabulary {
		features[word] = false
	}
	for _, word := range words {
		if extractor.known[word] {
			features[word] = true
		}
	}
	return features
}

// LoadFeatureMap reads a vocabulary file. Both a JSON list of words and
// a JSON object keyed by word are accepted; the result is sorted.
func LoadFeatureMap(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading feature map %v: %v", ErrModel, path, err)
	}
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		var featureMap map[string]bool
		if mapErr := json.Unmarshal(data, &featureMap); mapErr != nil {
			return nil, fmt.Errorf("%w: parsing feature map %v: %v", ErrModel, path, err)
		}
		for word := range featureMap {
			words = append(words, word)
		}
	}
	sort.Strings(words)
	return words, nil
}
