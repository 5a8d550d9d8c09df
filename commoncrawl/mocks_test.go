package commoncrawl

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/stretchr/testify/mock"
)

// tick pauses execution so that goroutines under test can make progress.
func tick() {
	time.Sleep(time.Millisecond * 5)
}

func gzipBytes(data []byte) []byte {
	buffer := new(bytes.Buffer)
	writer := gzip.NewWriter(buffer)
	writer.Write(data)
	writer.Close()
	return buffer.Bytes()
}

func gunzipBytes(data []byte) []byte {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	contents, err := io.ReadAll(reader)
	if err != nil {
		panic(err)
	}
	return contents
}

// MockHTTPClient answers requests by url
type MockHTTPClient struct {
	mock.Mock
}

func (client *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := client.Called(req.URL.String())
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func okResponse(data []byte) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(bytes.NewReader(data)),
	}
}

// MockStatusWriter keeps every status it receives
type MockStatusWriter struct {
	mutex    sync.Mutex
	statuses []ProcessStatus
}

func (writer *MockStatusWriter) WriteStatus(status ProcessStatus) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	writer.statuses = append(writer.statuses, status)
}

func (writer *MockStatusWriter) Last() (ProcessStatus, bool) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	if len(writer.statuses) == 0 {
		return ProcessStatus{}, false
	}
	return writer.statuses[len(writer.statuses)-1], true
}

// mockS3Client implements the few S3 calls the framework makes
type mockS3Client struct {
	s3iface.S3API
	mock.Mock
}

func (client *mockS3Client) GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	args := client.Called(*input.Bucket, *input.Key)
	output, _ := args.Get(0).(*s3.GetObjectOutput)
	return output, args.Error(1)
}

func (client *mockS3Client) GetObjectWithContext(ctx context.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	args := client.Called(*input.Bucket, *input.Key, *input.Range)
	output, _ := args.Get(0).(*s3.GetObjectOutput)
	return output, args.Error(1)
}

func (client *mockS3Client) PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(input.Body)
	args := client.Called(*input.Bucket, *input.Key, data)
	output, _ := args.Get(0).(*s3.PutObjectOutput)
	return output, args.Error(1)
}

func (client *mockS3Client) ListObjectsPages(input *s3.ListObjectsInput, fn func(*s3.ListObjectsOutput, bool) bool) error {
	args := client.Called(*input.Bucket, *input.Prefix)
	if page, ok := args.Get(0).(*s3.ListObjectsOutput); ok {
		fn(page, true)
	}
	return args.Error(1)
}

// mockSQSClient implements the few SQS calls the framework makes
type mockSQSClient struct {
	sqsiface.SQSAPI
	mock.Mock
}

func (client *mockSQSClient) GetQueueUrl(input *sqs.GetQueueUrlInput) (*sqs.GetQueueUrlOutput, error) {
	args := client.Called(*input.QueueName)
	output, _ := args.Get(0).(*sqs.GetQueueUrlOutput)
	return output, args.Error(1)
}

func (client *mockSQSClient) ReceiveMessage(input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
	args := client.Called(*input.QueueUrl)
	output, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return output, args.Error(1)
}

func (client *mockSQSClient) ReceiveMessageWithContext(ctx context.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	return client.ReceiveMessage(input)
}

func (client *mockSQSClient) DeleteMessage(input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
	args := client.Called(*input.QueueUrl, *input.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, args.Error(0)
}

func (client *mockSQSClient) DeleteMessageWithContext(ctx context.Context, input *sqs.DeleteMessageInput, opts ...request.Option) (*sqs.DeleteMessageOutput, error) {
	return client.DeleteMessage(input)
}

// testItem is a minimal OutputItem
type testItem struct {
	set   string
	key   string
	count int
}

func (item *testItem) OutputSet() string { return item.set }
func (item *testItem) Key() string       { return item.key }
func (item *testItem) Line() string      { return item.key + "\t" + strconv.Itoa(item.count) }

// testReducer sums counts
type testReducer struct{}

func (reducer *testReducer) Reduce(existingItem OutputItem, newItem OutputItem) OutputItem {
	existingItem.(*testItem).count += newItem.(*testItem).count
	return existingItem
}
