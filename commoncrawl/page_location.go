package commoncrawl

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLocation is returned for page locations that cannot address a byte range
var ErrInvalidLocation = errors.New("invalid page location")

// PageLocation identifies one page capture inside one compressed ARC segment file.
// Each input record is one JSON encoded PageLocation.
type PageLocation struct {
	SegmentID      string `json:"arcSourceSegmentId"`
	FileDate       string `json:"arcFileDate"`
	FilePartition  string `json:"arcFileParition"` // the misspelling is part of the dataset format
	Offset         int64  `json:"arcFileOffset"`
	CompressedSize int64  `json:"compressedSize"`
	URL            string `json:"url"`
}

// ParsePageLocation decodes a single input line
func ParsePageLocation(line []byte) (*PageLocation, error) {
	location := new(PageLocation)
	if err := json.Unmarshal(line, location); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	if err := location.Validate(); err != nil {
		return nil, err
	}
	return location, nil
}

// Validate checks that the location addresses a non-empty byte range in a named segment
func (location *PageLocation) Validate() error {
	if location.SegmentID == "" || location.FileDate == "" || location.FilePartition == "" {
		return fmt.Errorf("%w: segment, date and partition are required (url=%v)", ErrInvalidLocation, location.URL)
	}
	if location.Offset < 0 {
		return fmt.Errorf("%w: negative offset %v (url=%v)", ErrInvalidLocation, location.Offset, location.URL)
	}
	if location.CompressedSize <= 0 {
		return fmt.Errorf("%w: compressed size %v (url=%v)", ErrInvalidLocation, location.CompressedSize, location.URL)
	}
	if strings.TrimSpace(location.URL) == "" {
		return fmt.Errorf("%w: url is required (segment=%v, offset=%v)", ErrInvalidLocation, location.SegmentID, location.Offset)
	}
	return nil
}

// SegmentKey returns the object key of the segment file holding the page.
//
// * collectionRoot - top level folder of the crawl, e.g. "common-crawl"
func (location *PageLocation) SegmentKey(collectionRoot string) string {
	return fmt.Sprintf("/%v/parse-output/segment/%v/%v_%v.arc.gz",
		collectionRoot, location.SegmentID, location.FileDate, location.FilePartition)
}

// ByteRange returns the inclusive range of the compressed page inside the segment
func (location *PageLocation) ByteRange() (start int64, end int64) {
	return location.Offset, location.Offset + location.CompressedSize - 1
}

// RangeHeader returns the value for an http Range header covering the page
func (location *PageLocation) RangeHeader() string {
	start, end := location.ByteRange()
	return fmt.Sprintf("bytes=%d-%d", start, end)
}
