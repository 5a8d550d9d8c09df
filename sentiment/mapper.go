package sentiment

import (
	"context"
	"fmt"

	"github.com/ssalevan/cc-yt-sentiment/commoncrawl"
)

const (
	// CounterGroup holds the page and comment counters
	CounterGroup = "YouTube"
	// PagesCounter counts pages that were scored
	PagesCounter = "num_videos"
	// CommentsCounter counts comments that were scored
	CommentsCounter = "num_comments"
)

// PageMapper scores the comments of one page capture per record
type PageMapper struct {
	outputSet string
	fetcher   commoncrawl.SliceFetcher
	parser    *CommentParser
	scorer    *Scorer
	precision int // decimal places of the score key, negative for exact keys
}

// NewPageMapper returns a new instance of PageMapper
//
// * outputSet - Output set of the emitted groups
// * fetcher - Retrieves page captures
// * parser - Extracts comment text
// * scorer - Scores the comments of a page
// * precision - Decimal places of the score key, negative for exact keys
func NewPageMapper(outputSet string, fetcher commoncrawl.SliceFetcher, parser *CommentParser, scorer *Scorer, precision int) *PageMapper {
	return &PageMapper{
		outputSet: outputSet,
		fetcher:   fetcher,
		parser:    parser,
		scorer:    scorer,
		precision: precision,
	}
}

// MapRecord emits exactly one group holding the page URL under its score.
// Counters are only incremented once the page has been scored.
func (mapper *PageMapper) MapRecord(ctx context.Context, record interface{}, output func(commoncrawl.OutputItem), counters commoncrawl.Counters) error {
	location, ok := record.(*commoncrawl.PageLocation)
	if !ok {
		return fmt.Errorf("unexpected record type %T", record)
	}
	slice, err := mapper.fetcher.FetchSlice(ctx, location)
	if err != nil {
		return err
	}
	defer slice.Close()
	comments, err := mapper.parser.ParseComments(slice)
	if err != nil {
		return fmt.Errorf("%w: %v: %v", commoncrawl.ErrFetch, location.URL, err)
	}
	score, err := mapper.scorer.ScoreComments(comments)
	if err != nil {
		return fmt.Errorf("%v: %w", location.URL, err)
	}
	counters.IncrementCounter(CounterGroup, PagesCounter, 1)
	counters.IncrementCounter(CounterGroup, CommentsCounter, len(comments))
	output(&PageGroup{
		Set:   mapper.outputSet,
		Score: RoundScore(score, mapper.precision),
		URLs:  []string{location.URL},
	})
	return nil
}
