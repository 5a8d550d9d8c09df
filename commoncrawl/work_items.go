package commoncrawl

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// A WorkItem is a single task for the process, and
// will have one to many input files of page locations that need to be processed.
type WorkItem struct {
	WorkItemID  string   // ID of the work item
	SourceFiles []string // Source files to be processed
}

// WorkItemReader parses raw messages from a queue or index file
// and outputs `WorkItem` instances.
type WorkItemReader interface {
	// ReadWorkItem parses the message into a `WorkItem` instance
	ReadWorkItem(message string) (*WorkItem, error)
}

// Read the message as a list of source file paths, delimited by newline character.
// The first path doubles as the work item id.
func readMessageAsFileList(message string) (*WorkItem, error) {
	lines := strings.Split(message, "\n")
	sourceFiles := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			sourceFiles = append(sourceFiles, line)
		}
	}
	if len(sourceFiles) == 0 {
		return nil, fmt.Errorf("work item message has no source files")
	}
	return &WorkItem{
		WorkItemID:  sourceFiles[0],
		SourceFiles: sourceFiles,
	}, nil
}

// DefaultWorkItemReader implements the WorkItemReader interface.
// Each line of the message is a source file.
type DefaultWorkItemReader struct{}

// NewDefaultWorkItemReader returns a new instance of DefaultWorkItemReader
func NewDefaultWorkItemReader() *DefaultWorkItemReader {
	return new(DefaultWorkItemReader)
}

// ReadWorkItem parses the message into a `WorkItem` instance.
func (workItemReader *DefaultWorkItemReader) ReadWorkItem(message string) (*WorkItem, error) {
	return readMessageAsFileList(message)
}

// S3WorkItemReader implements the WorkItemReader interface for S3 source files.
// Messages ending in "/" are expanded to every object under that prefix.
type S3WorkItemReader struct {
	s3Bucket string
	s3Client s3iface.S3API
}

// NewS3WorkItemReader returns a new instance of S3WorkItemReader
//
// * s3Client - S3 client used to list prefixes
// * bucket - Bucket holding the input files
func NewS3WorkItemReader(s3Client s3iface.S3API, bucket string) (*S3WorkItemReader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("input bucket is required for S3WorkItemReader")
	}
	workItemReader := new(S3WorkItemReader)
	workItemReader.s3Bucket = bucket
	workItemReader.s3Client = s3Client
	return workItemReader, nil
}

// ReadWorkItem parses the message into a `WorkItem` instance.
// It queries S3 by prefix in the message and sets the result list of keys as source files in the `WorkItem`
func (workItemReader *S3WorkItemReader) ReadWorkItem(message string) (*WorkItem, error) {
	message = strings.TrimSpace(message)
	if !strings.HasSuffix(message, "/") {
		return readMessageAsFileList(message)
	}
	sourceFiles := []string{}
	listKeysInput := &s3.ListObjectsInput{
		Bucket:    aws.String(workItemReader.s3Bucket),
		Prefix:    aws.String(message),
		Delimiter: aws.String("/"),
	}
	err := workItemReader.s3Client.ListObjectsPages(listKeysInput, func(page *s3.ListObjectsOutput, lastPage bool) bool {
		for _, object := range page.Contents {
			sourceFiles = append(sourceFiles, aws.StringValue(object.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing objects under '%v': %w", message, err)
	}
	return &WorkItem{
		WorkItemID:  message,
		SourceFiles: sourceFiles,
	}, nil
}

// NewWorkItemReader returns a WorkItemReader based on configuration
func NewWorkItemReader(conf *TaskConfiguration, s3Client s3iface.S3API) (WorkItemReader, error) {
	if conf.InputBucket == "" {
		return NewDefaultWorkItemReader(), nil
	}
	return NewS3WorkItemReader(s3Client, conf.InputBucket)
}
