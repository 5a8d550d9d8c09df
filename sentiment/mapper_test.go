package sentiment

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ssalevan/cc-yt-sentiment/commoncrawl"
	"github.com/stretchr/testify/suite"
)

// memoryFetcher serves decompressed captures by page URL
type memoryFetcher struct {
	pages map[string]string
}

func (fetcher *memoryFetcher) FetchSlice(ctx context.Context, location *commoncrawl.PageLocation) (io.ReadCloser, error) {
	page, ok := fetcher.pages[location.URL]
	if !ok {
		return nil, &commoncrawl.FetchError{Key: location.SegmentKey(commoncrawl.DefaultCollectionRoot), Range: location.RangeHeader(), Err: errors.New("NoSuchKey")}
	}
	if page == "<broken>" {
		return io.NopCloser(io.MultiReader(strings.NewReader(page), new(failingReader))), nil
	}
	return io.NopCloser(strings.NewReader(page)), nil
}

// keywordClassifier is positive about "great" and negative about "awful"
type keywordClassifier struct{}

func (classifier *keywordClassifier) Classify(features FeatureSet) (Distribution, error) {
	switch {
	case features["great"]:
		return Distribution{Positive: 0.8, Negative: 0.2}, nil
	case features["awful"]:
		return Distribution{Positive: 0.2, Negative: 0.8}, nil
	}
	return Distribution{Positive: 0.5, Negative: 0.5}, nil
}

func location(url string) *commoncrawl.PageLocation {
	return &commoncrawl.PageLocation{
		SegmentID:      "1346823845675",
		FileDate:       "1346870220813",
		FilePartition:  "16",
		Offset:         0,
		CompressedSize: 100,
		URL:            url,
	}
}

type PageMapperTestSuite struct {
	suite.Suite
	mapper    *PageMapper
	collected *collectedOutput
}

func (suite *PageMapperTestSuite) SetupTest() {
	fetcher := &memoryFetcher{pages: map[string]string{
		"http://www.youtube.com/watch?v=mixed": capture("text/html", `
			<div class="comment-text">Great video</div>
			<div class="comment-text">awful, awful</div>
			<div class="comment-text">GREAT</div>`),
		"http://www.youtube.com/watch?v=quiet":  capture("text/html", `<div class="description">no comments yet</div>`),
		"http://www.youtube.com/watch?v=broken": "<broken>",
	}}
	extractor, err := NewFeatureExtractor([]string{"great", "awful"}, "")
	suite.Require().NoError(err)
	suite.mapper = NewPageMapper("grouped", fetcher, NewCommentParser(""), NewScorer(extractor, new(keywordClassifier)), 2)
	suite.collected = newCollectedOutput()
}

func (suite *PageMapperTestSuite) mapURL(url string) error {
	return suite.mapper.MapRecord(context.Background(), location(url), suite.collected.output, suite.collected)
}

func (suite *PageMapperTestSuite) TestScoresPage() {
	suite.Require().NoError(suite.mapURL("http://www.youtube.com/watch?v=mixed"))
	suite.Require().Len(suite.collected.items, 1)
	suite.Require().Equal("0.2\thttp://www.youtube.com/watch?v=mixed", suite.collected.items[0].Line())
	suite.Require().Equal("grouped", suite.collected.items[0].OutputSet())
	suite.Require().Equal(map[string]int{"YouTube/num_videos": 1, "YouTube/num_comments": 3}, suite.collected.counters)
}

func (suite *PageMapperTestSuite) TestPageWithoutComments() {
	suite.Require().NoError(suite.mapURL("http://www.youtube.com/watch?v=quiet"))
	suite.Require().Equal("2.0\thttp://www.youtube.com/watch?v=quiet", suite.collected.items[0].Line())
	suite.Require().Equal(map[string]int{"YouTube/num_videos": 1, "YouTube/num_comments": 0}, suite.collected.counters)
}

// Failed pages produce neither output nor counters
func (suite *PageMapperTestSuite) TestFetchError() {
	err := suite.mapURL("http://www.youtube.com/watch?v=missing")
	suite.Require().ErrorIs(err, commoncrawl.ErrFetch)
	suite.Require().Empty(suite.collected.items)
	suite.Require().Empty(suite.collected.counters)

	err = suite.mapURL("http://www.youtube.com/watch?v=broken")
	suite.Require().ErrorIs(err, commoncrawl.ErrFetch)
	suite.Require().Empty(suite.collected.items)
	suite.Require().Empty(suite.collected.counters)
}

func (suite *PageMapperTestSuite) TestUnexpectedRecord() {
	err := suite.mapper.MapRecord(context.Background(), "not a location", suite.collected.output, suite.collected)
	suite.Require().Error(err)
}

func TestPageMapperTestSuite(t *testing.T) {
	suite.Run(t, new(PageMapperTestSuite))
}
