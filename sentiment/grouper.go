package sentiment

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ssalevan/cc-yt-sentiment/commoncrawl"
)

// FormatScore renders a score the way the grouping keys have always been
// written: shortest representation, always with a decimal point or exponent.
func FormatScore(score float64) string {
	text := strconv.FormatFloat(score, 'g', -1, 64)
	if strings.ContainsAny(text, ".eIN") {
		return text
	}
	return text + ".0"
}

// RoundScore rounds a score to precision decimal places. A negative precision
// and the no comments marker leave the score unchanged.
func RoundScore(score float64, precision int) float64 {
	if precision < 0 || score == NoCommentsScore {
		return score
	}
	scale := math.Pow(10, float64(precision))
	rounded := math.Round(score*scale) / scale
	if rounded == 0 {
		// no "-0.0" keys
		return 0
	}
	return rounded
}

// PageGroup is every page sharing one score
type PageGroup struct {
	Set   string   // Output set the group is written to
	Score float64  // Page score shared by the group
	URLs  []string // Page URLs in arrival order
}

// OutputSet indicates the output folder for the data
func (group *PageGroup) OutputSet() string {
	return group.Set
}

// Key is the formatted score
func (group *PageGroup) Key() string {
	return FormatScore(group.Score)
}

// Line renders the group as "<score>\t<url>,<url>"
func (group *PageGroup) Line() string {
	return group.Key() + "\t" + strings.Join(group.URLs, ",")
}

// ParsePageGroup reads a line written by Line. The URL list is kept as a
// single element so that URLs containing commas survive.
func ParsePageGroup(outputSet string, line string) (*PageGroup, error) {
	scoreText, urls, found := strings.Cut(line, "\t")
	if !found {
		return nil, fmt.Errorf("no tab in group line '%v'", line)
	}
	score, err := strconv.ParseFloat(scoreText, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid score '%v': %w", scoreText, err)
	}
	group := &PageGroup{Set: outputSet, Score: score}
	if urls != "" {
		group.URLs = []string{urls}
	}
	return group, nil
}

// GroupReducer joins the URLs of groups sharing a score
type GroupReducer struct{}

// Reduce appends the URLs of newItem to existingItem
func (reducer *GroupReducer) Reduce(existingItem commoncrawl.OutputItem, newItem commoncrawl.OutputItem) commoncrawl.OutputItem {
	existing, existingOk := existingItem.(*PageGroup)
	added, addedOk := newItem.(*PageGroup)
	if !existingOk || !addedOk {
		panic(fmt.Sprintf("invalid inputs for reducer: %T, %T", existingItem, newItem))
	}
	if existing.Key() != added.Key() {
		panic(fmt.Sprintf("mismatching keys for reducer: %v, %v", existing.Key(), added.Key()))
	}
	existing.URLs = append(existing.URLs, added.URLs...)
	return existing
}

// GroupReductionMapper reads map phase output lines back into groups,
// so that a reduce phase can merge the shards of many map tasks.
type GroupReductionMapper struct {
	outputSet string
}

// NewGroupReductionMapper returns a GroupReductionMapper emitting into outputSet
func NewGroupReductionMapper(outputSet string) *GroupReductionMapper {
	return &GroupReductionMapper{outputSet: outputSet}
}

// MapRecord parses one output line
func (mapper *GroupReductionMapper) MapRecord(ctx context.Context, record interface{}, output func(commoncrawl.OutputItem), counters commoncrawl.Counters) error {
	var line string
	switch value := record.(type) {
	case []byte:
		line = string(value)
	case string:
		line = value
	default:
		return fmt.Errorf("unexpected record type %T", record)
	}
	group, err := ParsePageGroup(mapper.outputSet, line)
	if err != nil {
		return err
	}
	output(group)
	return nil
}

// NoCommentsFilter drops the group of pages without comments
type NoCommentsFilter struct{}

// TestOutputItem returns false for the no comments group
func (filter *NoCommentsFilter) TestOutputItem(item commoncrawl.OutputItem) bool {
	group, ok := item.(*PageGroup)
	return !ok || group.Score != NoCommentsScore
}
