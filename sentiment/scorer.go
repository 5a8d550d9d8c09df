package sentiment

import "fmt"

// NoCommentsScore marks a page without comments. Real scores lie in [-1, 1].
const NoCommentsScore = 2.0

// CommentScore is the gap between the negative and positive probabilities,
// negative when the negative label is the most likely one.
func CommentScore(dist Distribution) float64 {
	neg, pos := dist.Prob(Negative), dist.Prob(Positive)
	score := neg - pos
	if pos > neg {
		score = pos - neg
	}
	if dist.Max() == Negative {
		score = -score
	}
	return score
}

// PageScore is the arithmetic mean of the comment scores of a page,
// or NoCommentsScore when there are none.
func PageScore(scores []float64) float64 {
	if len(scores) == 0 {
		return NoCommentsScore
	}
	total := 0.0
	for _, score := range scores {
		total += score
	}
	return total / float64(len(scores))
}

// Scorer rates comments with a classifier
type Scorer struct {
	extractor  *FeatureExtractor
	classifier Classifier
}

// NewScorer returns a Scorer that classifies the features extractor builds
func NewScorer(extractor *FeatureExtractor, classifier Classifier) *Scorer {
	return &Scorer{extractor: extractor, classifier: classifier}
}

// ScoreComment extracts the features of one comment and scores it
func (scorer *Scorer) ScoreComment(text string) (float64, error) {
	dist, err := scorer.classifier.Classify(scorer.extractor.Extract(text))
	if err != nil {
		return 0, err
	}
	return CommentScore(dist), nil
}

// ScoreComments returns the page score of a list of comments
func (scorer *Scorer) ScoreComments(texts []string) (float64, error) {
	scores := make([]float64, 0, len(texts))
	for i, text := range texts {
		score, err := scorer.ScoreComment(text)
		if err != nil {
			return 0, fmt.Errorf("scoring comment %d: %w", i, err)
		}
		scores = append(scores, score)
	}
	return PageScore(scores), nil
}
