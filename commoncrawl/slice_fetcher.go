package commoncrawl

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"
)

// ErrFetch is matched by every error a SliceFetcher returns for a failed retrieval
var ErrFetch = errors.New("fetch error")

// FetchError describes a failed range retrieval of one page capture
type FetchError struct {
	Key   string // Object key of the segment file
	Range string // Requested byte range
	Err   error  // Underlying storage or decompression error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %v (%v): %v", e.Key, e.Range, e.Err)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetch
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// A SliceFetcher retrieves the compressed bytes of a single page capture
// from its ARC segment and returns them decompressed.
type SliceFetcher interface {
	// FetchSlice issues exactly one range request for the location.
	// The caller must close the returned reader.
	FetchSlice(ctx context.Context, location *PageLocation) (io.ReadCloser, error)
}

// gzipSlice closes both the decompressor and the underlying body
type gzipSlice struct {
	*gzip.Reader
	body io.Closer
}

func (slice *gzipSlice) Close() error {
	err := slice.Reader.Close()
	if bodyErr := slice.body.Close(); err == nil {
		err = bodyErr
	}
	return err
}

func decompressSlice(body io.ReadCloser, key string, location *PageLocation) (io.ReadCloser, error) {
	gzReader, err := gzip.NewReader(body)
	if err != nil {
		body.Close()
		return nil, &FetchError{Key: key, Range: location.RangeHeader(), Err: err}
	}
	// Each capture is its own gzip member, anything after it belongs to the next page
	gzReader.Multistream(false)
	return &gzipSlice{Reader: gzReader, body: body}, nil
}

// S3SliceFetcher reads slices with ranged GetObject calls
type S3SliceFetcher struct {
	s3Client       s3iface.S3API
	bucket         string
	collectionRoot string
	logger         logrus.FieldLogger
}

// NewS3SliceFetcher returns a new instance of S3SliceFetcher
//
// * s3Client - S3 client that will be used to download
// * bucket - Bucket holding the ARC segments
// * collectionRoot - Top level folder of the crawl inside the bucket
// * logger - Log events
func NewS3SliceFetcher(s3Client s3iface.S3API, bucket string, collectionRoot string, logger logrus.FieldLogger) *S3SliceFetcher {
	fetcher := new(S3SliceFetcher)
	fetcher.s3Client = s3Client
	fetcher.bucket = bucket
	fetcher.collectionRoot = collectionRoot
	fetcher.logger = logger.WithField("component", "s3_slice_fetcher")
	return fetcher
}

// FetchSlice gets the page bytes through the S3 API. Object keys carry no leading slash.
func (fetcher *S3SliceFetcher) FetchSlice(ctx context.Context, location *PageLocation) (io.ReadCloser, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	key := strings.TrimPrefix(location.SegmentKey(fetcher.collectionRoot), "/")
	input := &s3.GetObjectInput{
		Bucket: aws.String(fetcher.bucket),
		Key:    aws.String(key),
		Range:  aws.String(location.RangeHeader()),
	}
	resp, err := fetcher.s3Client.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, &FetchError{Key: key, Range: location.RangeHeader(), Err: err}
	}
	return decompressSlice(resp.Body, key, location)
}

// HTTPSliceFetcher reads slices from a public dataset host with http range requests
type HTTPSliceFetcher struct {
	datasetHost    string
	collectionRoot string
	httpClient     HTTPClient
}

// NewHTTPSliceFetcher returns a new instance of HTTPSliceFetcher
//
// * datasetHost - Base URL of the archive bucket
// * collectionRoot - Top level folder of the crawl
// * httpClient - HTTP client that will be used to download
func NewHTTPSliceFetcher(datasetHost string, collectionRoot string, httpClient HTTPClient) *HTTPSliceFetcher {
	fetcher := new(HTTPSliceFetcher)
	fetcher.datasetHost = strings.TrimSuffix(datasetHost, "/")
	fetcher.collectionRoot = collectionRoot
	fetcher.httpClient = httpClient
	return fetcher
}

// FetchSlice gets the page bytes with a single ranged GET
func (fetcher *HTTPSliceFetcher) FetchSlice(ctx context.Context, location *PageLocation) (io.ReadCloser, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	key := location.SegmentKey(fetcher.collectionRoot)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetcher.datasetHost+key, nil)
	if err != nil {
		return nil, &FetchError{Key: key, Range: location.RangeHeader(), Err: err}
	}
	req.Header.Set("Range", location.RangeHeader())
	resp, err := fetcher.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Key: key, Range: location.RangeHeader(), Err: err}
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &FetchError{Key: key, Range: location.RangeHeader(), Err: fmt.Errorf("unexpected status %v", resp.Status)}
	}
	return decompressSlice(resp.Body, key, location)
}

// LocalSliceFetcher reads slices from a local mirror of the archive bucket
type LocalSliceFetcher struct {
	directory      string
	collectionRoot string
}

// NewLocalSliceFetcher returns a new instance of LocalSliceFetcher
//
// * directory - Local folder mirroring the archive bucket
// * collectionRoot - Top level folder of the crawl
func NewLocalSliceFetcher(directory string, collectionRoot string) *LocalSliceFetcher {
	return &LocalSliceFetcher{directory: directory, collectionRoot: collectionRoot}
}

type sectionFile struct {
	*io.SectionReader
	file *os.File
}

func (section *sectionFile) Close() error {
	return section.file.Close()
}

// FetchSlice reads the page bytes from the segment file on disk
func (fetcher *LocalSliceFetcher) FetchSlice(ctx context.Context, location *PageLocation) (io.ReadCloser, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	key := location.SegmentKey(fetcher.collectionRoot)
	file, err := os.Open(filepath.Join(fetcher.directory, filepath.FromSlash(key)))
	if err != nil {
		return nil, &FetchError{Key: key, Range: location.RangeHeader(), Err: err}
	}
	section := io.NewSectionReader(file, location.Offset, location.CompressedSize)
	return decompressSlice(&sectionFile{SectionReader: section, file: file}, key, location)
}

// NewSliceFetcher returns a SliceFetcher based on configuration
func NewSliceFetcher(conf *TaskConfiguration, s3Client s3iface.S3API, httpClient HTTPClient, logger logrus.FieldLogger) SliceFetcher {
	if conf.ArchiveDirectory != "" {
		logger.Infof("Reading archive slices from '%v'", conf.ArchiveDirectory)
		return NewLocalSliceFetcher(conf.ArchiveDirectory, conf.CollectionRoot)
	}
	if conf.ArchiveOverHTTP {
		host := conf.DatasetHost
		if host == "" {
			host = fmt.Sprintf("https://%v.s3.amazonaws.com", conf.ArchiveBucket)
		}
		logger.Infof("Reading archive slices over http from '%v'", host)
		return NewHTTPSliceFetcher(host, conf.CollectionRoot, httpClient)
	}
	logger.Infof("Reading archive slices from s3 bucket '%v'", conf.ArchiveBucket)
	return NewS3SliceFetcher(s3Client, conf.ArchiveBucket, conf.CollectionRoot, logger)
}

// timeoutSlice cancels the fetch context once the slice is closed
type timeoutSlice struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (slice *timeoutSlice) Close() error {
	defer slice.cancel()
	return slice.ReadCloser.Close()
}

type timeoutSliceFetcher struct {
	fetcher SliceFetcher
	timeout time.Duration
}

// WithFetchTimeout bounds every fetch, including reading the returned slice,
// by timeout. A zero timeout returns fetcher unchanged.
func WithFetchTimeout(fetcher SliceFetcher, timeout time.Duration) SliceFetcher {
	if timeout <= 0 {
		return fetcher
	}
	return &timeoutSliceFetcher{fetcher: fetcher, timeout: timeout}
}

func (fetcher *timeoutSliceFetcher) FetchSlice(ctx context.Context, location *PageLocation) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, fetcher.timeout)
	slice, err := fetcher.fetcher.FetchSlice(ctx, location)
	if err != nil {
		cancel()
		return nil, err
	}
	return &timeoutSlice{ReadCloser: slice, cancel: cancel}, nil
}
