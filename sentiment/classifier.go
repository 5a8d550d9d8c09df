package sentiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
)

const (
	// Positive is the label of comments with positive sentiment
	Positive = "pos"
	// Negative is the label of comments with negative sentiment
	Negative = "neg"

	// unseenValue keys the log probability of a feature value absent from training
	unseenValue = "*"
)

var (
	// ErrClassification is returned for feature input a classifier cannot evaluate
	ErrClassification = errors.New("classification error")
	// ErrModel is returned when a model or vocabulary artifact cannot be loaded
	ErrModel = errors.New("invalid model")
)

// Distribution is a probability mass over sentiment labels
type Distribution map[string]float64

// Prob returns the probability of label, zero when it is absent
func (dist Distribution) Prob(label string) float64 {
	return dist[label]
}

// Max returns the most likely label. Ties go to Positive, then to the
// lexically smallest label.
func (dist Distribution) Max() string {
	labels := make([]string, 0, len(dist))
	for label := range dist {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	best := ""
	bestProb := math.Inf(-1)
	for _, label := range labels {
		prob := dist[label]
		if prob > bestProb || (prob == bestProb && label == Positive) {
			best = label
			bestProb = prob
		}
	}
	return best
}

// A Classifier estimates the sentiment of a feature set.
// Implementations are deterministic and safe for concurrent use.
type Classifier interface {
	Classify(features FeatureSet) (Distribution, error)
}

// naiveBayesModel is the JSON artifact exported from a trained classifier.
// Log probabilities use the natural logarithm.
type naiveBayesModel struct {
	LogPriors map[string]float64 `json:"log_priors"`
	// label -> feature -> value ("true", "false" or "*" for unseen values) -> log probability
	FeatureLogProbs map[string]map[string]map[string]float64 `json:"feature_log_probs"`
	Vocabulary      []string                                  `json:"vocabulary"`
}

// NaiveBayesClassifier evaluates a trained naive Bayes model
type NaiveBayesClassifier struct {
	labels     []string
	logPriors  map[string]float64
	features   map[string]map[string]map[string]float64
	known      map[string]bool // features seen with any label
	vocabulary []string
}

// NewNaiveBayesClassifier builds a classifier from label log priors and
// per label feature value log probabilities.
func NewNaiveBayesClassifier(
	logPriors map[string]float64,
	featureLogProbs map[string]map[string]map[string]float64,
	vocabulary []string,
) (*NaiveBayesClassifier, error) {
	if _, ok := logPriors[Positive]; !ok {
		return nil, fmt.Errorf("%w: no prior for label '%v'", ErrModel, Positive)
	}
	if _, ok := logPriors[Negative]; !ok {
		return nil, fmt.Errorf("%w: no prior for label '%v'", ErrModel, Negative)
	}
	classifier := &NaiveBayesClassifier{
		logPriors:  logPriors,
		features:   featureLogProbs,
		known:      map[string]bool{},
		vocabulary: vocabulary,
	}
	for label := range logPriors {
		classifier.labels = append(classifier.labels, label)
	}
	sort.Strings(classifier.labels)
	for _, features := range featureLogProbs {
		for fname := range features {
			classifier.known[fname] = true
		}
	}
	return classifier, nil
}

// LoadNaiveBayes reads a JSON model artifact from path
func LoadNaiveBayes(path string) (*NaiveBayesClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %v: %v", ErrModel, path, err)
	}
	model := naiveBayesModel{}
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("%w: parsing %v: %v", ErrModel, path, err)
	}
	return NewNaiveBayesClassifier(model.LogPriors, model.FeatureLogProbs, model.Vocabulary)
}

// Vocabulary returns the feature words the model was exported with
func (classifier *NaiveBayesClassifier) Vocabulary() []string {
	return classifier.vocabulary
}

func (classifier *NaiveBayesClassifier) featureLogProb(label string, fname string, fval bool) float64 {
	values, ok := classifier.features[label][fname]
	if !ok {
		// feature never seen with this label
		return math.Inf(-1)
	}
	if logProb, ok := values[strconv.FormatBool(fval)]; ok {
		return logProb
	}
	if logProb, ok := values[unseenValue]; ok {
		return logProb
	}
	return math.Inf(-1)
}

// Classify returns the posterior distribution over labels.
// Features the model has never seen are ignored.
func (classifier *NaiveBayesClassifier) Classify(features FeatureSet) (Distribution, error) {
	if features == nil {
		return nil, fmt.Errorf("%w: nil feature set", ErrClassification)
	}
	// sum in a fixed order so that equal inputs give bit-identical scores
	fnames := make([]string, 0, len(features))
	for fname := range features {
		if classifier.known[fname] {
			fnames = append(fnames, fname)
		}
	}
	sort.Strings(fnames)
	logProbs := make(map[string]float64, len(classifier.labels))
	for _, label := range classifier.labels {
		logProb := classifier.logPriors[label]
		for _, fname := range fnames {
			logProb += classifier.featureLogProb(label, fname, features[fname])
		}
		logProbs[label] = logProb
	}
	return normalizeLogProbs(logProbs), nil
}

// normalizeLogProbs converts log scores into probabilities summing to one.
// When every score is -Inf the result is uniform.
func normalizeLogProbs(logProbs map[string]float64) Distribution {
	dist := make(Distribution, len(logProbs))
	peak := math.Inf(-1)
	for _, logProb := range logProbs {
		peak = math.Max(peak, logProb)
	}
	if math.IsInf(peak, -1) {
		for label := range logProbs {
			dist[label] = 1 / float64(len(logProbs))
		}
		return dist
	}
	total := 0.0
	for _, logProb := range logProbs {
		total += math.Exp(logProb - peak)
	}
	for label, logProb := range logProbs {
		dist[label] = math.Exp(logProb-peak) / total
	}
	return dist
}
