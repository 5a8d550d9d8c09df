package commoncrawl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

const testPage = `http://www.youtube.com/watch?v=a 10.0.0.1 20120905033546 text/html 120
HTTP/1.1 200 OK
Content-Type: text/html; charset=utf-8

<html><body><div class="comment-text">great video</div></body></html>`

type SliceFetcherTestSuite struct {
	suite.Suite
	segment  []byte // a segment of three gzip members, the page is the middle one
	location *PageLocation
}

func (suite *SliceFetcherTestSuite) SetupTest() {
	before := gzipBytes([]byte("previous page"))
	page := gzipBytes([]byte(testPage))
	after := gzipBytes([]byte("next page"))
	suite.segment = append(append(append([]byte{}, before...), page...), after...)
	suite.location = testLocation()
	suite.location.Offset = int64(len(before))
	suite.location.CompressedSize = int64(len(page))
}

func (suite *SliceFetcherTestSuite) readSlice(fetcher SliceFetcher) string {
	slice, err := fetcher.FetchSlice(context.Background(), suite.location)
	suite.Require().NoError(err)
	defer slice.Close()
	data, err := io.ReadAll(slice)
	suite.Require().NoError(err)
	return string(data)
}

func (suite *SliceFetcherTestSuite) rangeOfSegment() []byte {
	start, end := suite.location.ByteRange()
	return suite.segment[start : end+1]
}

func (suite *SliceFetcherTestSuite) TestS3SliceFetcher() {
	client := new(mockS3Client)
	key := "common-crawl/parse-output/segment/1346823845675/1346870220813_16.arc.gz"
	client.On("GetObjectWithContext", DefaultArchiveBucket, key, suite.location.RangeHeader()).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(suite.rangeOfSegment())),
	}, nil).Once()
	fetcher := NewS3SliceFetcher(client, DefaultArchiveBucket, DefaultCollectionRoot, logrus.New())
	suite.Require().Equal(testPage, suite.readSlice(fetcher))
	client.AssertExpectations(suite.T())
}

func (suite *SliceFetcherTestSuite) TestS3SliceFetcherError() {
	client := new(mockS3Client)
	client.On("GetObjectWithContext", DefaultArchiveBucket, "common-crawl/parse-output/segment/1346823845675/1346870220813_16.arc.gz", suite.location.RangeHeader()).
		Return(nil, errors.New("NoSuchKey")).Once()
	fetcher := NewS3SliceFetcher(client, DefaultArchiveBucket, DefaultCollectionRoot, logrus.New())
	_, err := fetcher.FetchSlice(context.Background(), suite.location)
	suite.Require().ErrorIs(err, ErrFetch)
	var fetchErr *FetchError
	suite.Require().ErrorAs(err, &fetchErr)
	suite.Require().Equal(suite.location.RangeHeader(), fetchErr.Range)
}

// Invalid locations fail before any request is made
func (suite *SliceFetcherTestSuite) TestInvalidLocation() {
	client := new(mockS3Client)
	fetcher := NewS3SliceFetcher(client, DefaultArchiveBucket, DefaultCollectionRoot, logrus.New())
	suite.location.CompressedSize = 0
	_, err := fetcher.FetchSlice(context.Background(), suite.location)
	suite.Require().ErrorIs(err, ErrInvalidLocation)
	client.AssertNotCalled(suite.T(), "GetObjectWithContext")
}

func (suite *SliceFetcherTestSuite) TestHTTPSliceFetcher() {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		suite.Equal("/common-crawl/parse-output/segment/1346823845675/1346870220813_16.arc.gz", r.URL.Path)
		suite.Equal(suite.location.RangeHeader(), r.Header.Get("Range"))
		http.ServeContent(w, r, "segment.arc.gz", time.Time{}, bytes.NewReader(suite.segment))
	}))
	defer server.Close()
	fetcher := NewHTTPSliceFetcher(server.URL+"/", DefaultCollectionRoot, server.Client())
	suite.Require().Equal(testPage, suite.readSlice(fetcher))
	suite.Require().Equal(1, requests)
}

func (suite *SliceFetcherTestSuite) TestHTTPSliceFetcherMissingKey() {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	fetcher := NewHTTPSliceFetcher(server.URL, DefaultCollectionRoot, server.Client())
	_, err := fetcher.FetchSlice(context.Background(), suite.location)
	suite.Require().ErrorIs(err, ErrFetch)
}

func (suite *SliceFetcherTestSuite) TestLocalSliceFetcher() {
	directory := suite.T().TempDir()
	path := filepath.Join(directory, filepath.FromSlash(suite.location.SegmentKey(DefaultCollectionRoot)))
	suite.Require().NoError(os.MkdirAll(filepath.Dir(path), 0755))
	suite.Require().NoError(os.WriteFile(path, suite.segment, 0644))
	fetcher := NewLocalSliceFetcher(directory, DefaultCollectionRoot)
	suite.Require().Equal(testPage, suite.readSlice(fetcher))

	suite.location.FileDate = "missing"
	_, err := fetcher.FetchSlice(context.Background(), suite.location)
	suite.Require().ErrorIs(err, ErrFetch)
}

// A range that does not start on a gzip member is a fetch error
func (suite *SliceFetcherTestSuite) TestCorruptSlice() {
	client := new(mockS3Client)
	client.On("GetObjectWithContext", DefaultArchiveBucket, "common-crawl/parse-output/segment/1346823845675/1346870220813_16.arc.gz", suite.location.RangeHeader()).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("not gzip")))}, nil)
	fetcher := NewS3SliceFetcher(client, DefaultArchiveBucket, DefaultCollectionRoot, logrus.New())
	_, err := fetcher.FetchSlice(context.Background(), suite.location)
	suite.Require().ErrorIs(err, ErrFetch)
}

func (suite *SliceFetcherTestSuite) TestFetchTimeout() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()
	fetcher := WithFetchTimeout(NewHTTPSliceFetcher(server.URL, DefaultCollectionRoot, server.Client()), time.Millisecond*20)
	_, err := fetcher.FetchSlice(context.Background(), suite.location)
	suite.Require().ErrorIs(err, ErrFetch)
	suite.Require().ErrorIs(err, context.DeadlineExceeded)
}

func TestSliceFetcherTestSuite(t *testing.T) {
	suite.Run(t, new(SliceFetcherTestSuite))
}
