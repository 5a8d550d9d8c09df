package commoncrawl

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// memoryDownload serves an input file from memory
type memoryDownload struct {
	workItemID string
	filename   string
	data       []byte
	err        error
}

func (download *memoryDownload) Open() (io.ReadCloser, error) {
	if download.err != nil {
		return nil, download.err
	}
	return io.NopCloser(bytes.NewReader(download.data)), nil
}

func (download *memoryDownload) Filename() string   { return download.filename }
func (download *memoryDownload) WorkItemID() string { return download.workItemID }

const testManifest = `{"arcSourceSegmentId": "1346823845675", "arcFileDate": "1346870220813", "arcFileParition": "16", "arcFileOffset": 1000, "compressedSize": 500, "url": "http://www.youtube.com/watch?v=a"}
not json
{"arcSourceSegmentId": "1346823845675", "arcFileDate": "1346870220813", "arcFileParition": "16", "arcFileOffset": 1500, "compressedSize": 0, "url": "http://www.youtube.com/watch?v=b"}

{"arcSourceSegmentId": "1346823845675", "arcFileDate": "1346870220813", "arcFileParition": "17", "arcFileOffset": 0, "compressedSize": 42, "url": "http://www.youtube.com/watch?v=c"}
`

// Tests for Parser component
type ParserTestSuite struct {
	suite.Suite
	fileChan           chan FileDownload
	recordChan         chan ParsedRecord
	fileParsedListener chan FileParsed
	parser             *Parser
}

func (suite *ParserTestSuite) SetupTest() {
	suite.fileChan = make(chan FileDownload)
	suite.recordChan = make(chan ParsedRecord, 10)
	suite.fileParsedListener = make(chan FileParsed, 1)
	suite.parser = NewParser(
		NewPageLocationReader(logrus.New()),
		suite.fileChan,
		suite.recordChan,
		suite.fileParsedListener,
		logrus.New())
	suite.parser.Run()
}

func (suite *ParserTestSuite) waitParsed() FileParsed {
	select {
	case parsed := <-suite.fileParsedListener:
		return parsed
	case <-time.After(time.Second):
		suite.FailNow("File was not parsed in time")
	}
	return FileParsed{}
}

// Invalid lines are skipped, valid ones become page locations
func (suite *ParserTestSuite) TestParseManifest() {
	suite.fileChan <- &memoryDownload{workItemID: "item", filename: "manifest.json", data: []byte(testManifest)}
	parsed := suite.waitParsed()
	suite.Require().Equal(FileParsed{Filename: "manifest.json", Records: 2}, parsed)
	suite.Require().Len(suite.recordChan, 2)
	first := <-suite.recordChan
	suite.Require().Equal("item", first.WorkItemID)
	suite.Require().Equal("manifest.json", first.SourceFile)
	location := first.Record.(*PageLocation)
	suite.Require().Equal("http://www.youtube.com/watch?v=a", location.URL)
	suite.Require().Equal(int64(1000), location.Offset)
	second := <-suite.recordChan
	suite.Require().Equal("http://www.youtube.com/watch?v=c", second.Record.(*PageLocation).URL)
}

func (suite *ParserTestSuite) TestParseGzipManifest() {
	suite.fileChan <- &memoryDownload{workItemID: "item", filename: "manifest.json.gz", data: gzipBytes([]byte(testManifest))}
	parsed := suite.waitParsed()
	suite.Require().Equal(2, parsed.Records)
	suite.Require().False(parsed.Failed)
}

// A file that cannot be opened is reported as failed with no records
func (suite *ParserTestSuite) TestOpenError() {
	suite.fileChan <- &memoryDownload{workItemID: "item", filename: "missing.json", err: errors.New("not found")}
	parsed := suite.waitParsed()
	suite.Require().Equal(FileParsed{Filename: "missing.json", Failed: true}, parsed)
	suite.Require().Empty(suite.recordChan)
}

func TestParserTestSuite(t *testing.T) {
	suite.Run(t, new(ParserTestSuite))
}
