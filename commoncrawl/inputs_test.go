package commoncrawl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func receiveWorkItem(t *testing.T, input InputSource) *WorkItem {
	select {
	case workItem := <-input.WorkItemsOutput():
		return workItem
	case <-time.After(time.Second):
		t.Fatal("Expected a work item")
	}
	return nil
}

func TestReadMessageAsFileList(t *testing.T) {
	workItem, err := NewDefaultWorkItemReader().ReadWorkItem(" manifests/a.json \n\nmanifests/b.json\n")
	require.NoError(t, err)
	require.Equal(t, &WorkItem{WorkItemID: "manifests/a.json", SourceFiles: []string{"manifests/a.json", "manifests/b.json"}}, workItem)

	_, err = NewDefaultWorkItemReader().ReadWorkItem(" \n ")
	require.Error(t, err)
}

func TestS3WorkItemReaderListsPrefix(t *testing.T) {
	client := new(mockS3Client)
	client.On("ListObjectsPages", "input-bucket", "map-output/grouped/00001/").Return(&s3.ListObjectsOutput{
		Contents: []*s3.Object{
			{Key: aws.String("map-output/grouped/00001/a.txt.gz")},
			{Key: aws.String("map-output/grouped/00001/b.txt.gz")},
		},
	}, nil)
	reader, err := NewS3WorkItemReader(client, "input-bucket")
	require.NoError(t, err)
	workItem, err := reader.ReadWorkItem("map-output/grouped/00001/\n")
	require.NoError(t, err)
	require.Equal(t, "map-output/grouped/00001/", workItem.WorkItemID)
	require.Equal(t, []string{"map-output/grouped/00001/a.txt.gz", "map-output/grouped/00001/b.txt.gz"}, workItem.SourceFiles)

	// plain file lists are not listed
	workItem, err = reader.ReadWorkItem("manifests/a.json")
	require.NoError(t, err)
	require.Equal(t, []string{"manifests/a.json"}, workItem.SourceFiles)
	client.AssertNumberOfCalls(t, "ListObjectsPages", 1)

	_, err = NewS3WorkItemReader(client, "")
	require.Error(t, err)
}

func TestS3WorkItemReaderListError(t *testing.T) {
	client := new(mockS3Client)
	client.On("ListObjectsPages", "input-bucket", "missing/").Return(nil, errors.New("AccessDenied"))
	reader, err := NewS3WorkItemReader(client, "input-bucket")
	require.NoError(t, err)
	_, err = reader.ReadWorkItem("missing/")
	require.Error(t, err)
}

type FilesystemInputTestSuite struct {
	suite.Suite
	indexFile      string
	checkpointFile string
}

func (suite *FilesystemInputTestSuite) SetupTest() {
	directory := suite.T().TempDir()
	suite.indexFile = filepath.Join(directory, "index.txt")
	suite.checkpointFile = filepath.Join(directory, "completed.txt")
	suite.Require().NoError(os.WriteFile(suite.indexFile, []byte("manifests/a.json\n\nmanifests/b.json\nmanifests/c.json\n"), 0644))
}

func (suite *FilesystemInputTestSuite) newInput() *FilesystemInput {
	input := NewFilesystemInput(suite.indexFile, suite.checkpointFile, NewDefaultWorkItemReader(), logrus.New())
	input.Run()
	return input
}

// Work items are sent in index order, followed by nil
func (suite *FilesystemInputTestSuite) TestSendsIndex() {
	input := suite.newInput()
	suite.Require().Equal("manifests/a.json", receiveWorkItem(suite.T(), input).WorkItemID)
	suite.Require().Equal("manifests/b.json", receiveWorkItem(suite.T(), input).WorkItemID)
	suite.Require().Equal("manifests/c.json", receiveWorkItem(suite.T(), input).WorkItemID)
	suite.Require().Nil(receiveWorkItem(suite.T(), input))
	input.CompletedWorkItemsInput() <- ""
}

// Completed work items are checkpointed and skipped by later runs
func (suite *FilesystemInputTestSuite) TestCheckpoint() {
	input := suite.newInput()
	suite.Require().Equal("manifests/a.json", receiveWorkItem(suite.T(), input).WorkItemID)
	input.CompletedWorkItemsInput() <- "manifests/a.json"
	input.CompletedWorkItemsInput() <- ""

	lines, err := LoadFileLines(suite.checkpointFile)
	suite.Require().NoError(err)
	suite.Require().Equal([]string{"manifests/a.json"}, lines)

	input = suite.newInput()
	suite.Require().Equal("manifests/b.json", receiveWorkItem(suite.T(), input).WorkItemID)
	input.CompletedWorkItemsInput() <- ""
}

func TestFilesystemInputTestSuite(t *testing.T) {
	suite.Run(t, new(FilesystemInputTestSuite))
}

func TestSingleInputSource(t *testing.T) {
	input := NewSingleInputSource("manifests/a.json\nmanifests/b.json", NewDefaultWorkItemReader(), logrus.New())
	input.Run()
	workItem := receiveWorkItem(t, input)
	require.NotEqual(t, "manifests/a.json", workItem.WorkItemID)
	require.NotEmpty(t, workItem.WorkItemID)
	require.Equal(t, []string{"manifests/a.json", "manifests/b.json"}, workItem.SourceFiles)
	require.Nil(t, receiveWorkItem(t, input))
	input.CompletedWorkItemsInput() <- workItem.WorkItemID
	input.CompletedWorkItemsInput() <- ""
}

type SQSInputTestSuite struct {
	suite.Suite
	client   *mockSQSClient
	queueURL string
}

func (suite *SQSInputTestSuite) SetupTest() {
	suite.client = new(mockSQSClient)
	suite.queueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/work-items"
	suite.client.On("GetQueueUrl", "work-items").Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String(suite.queueURL)}, nil)
}

func (suite *SQSInputTestSuite) message(body string, receipt string) {
	suite.client.On("ReceiveMessage", suite.queueURL).Return(&sqs.ReceiveMessageOutput{
		Messages: []*sqs.Message{{Body: aws.String(body), ReceiptHandle: aws.String(receipt)}},
	}, nil).Once()
}

func (suite *SQSInputTestSuite) emptyQueue() {
	suite.client.On("ReceiveMessage", suite.queueURL).Return(&sqs.ReceiveMessageOutput{}, nil)
}

// Messages are deleted once their work item is saved, and empty receives end the input
func (suite *SQSInputTestSuite) TestDrainQueue() {
	suite.message("manifests/a.json", "receipt-a")
	suite.emptyQueue()
	suite.client.On("DeleteMessage", suite.queueURL, "receipt-a").Return(nil).Once()
	input := NewSQSInput(suite.client, "work-items", 2, NewDefaultWorkItemReader(), logrus.New())
	input.Run()

	suite.Require().Equal("manifests/a.json", receiveWorkItem(suite.T(), input).WorkItemID)
	suite.Require().Nil(receiveWorkItem(suite.T(), input))
	input.CompletedWorkItemsInput() <- "manifests/a.json"
	input.CompletedWorkItemsInput() <- ""
	suite.client.AssertExpectations(suite.T())
}

// Unreadable messages are removed from the queue right away
func (suite *SQSInputTestSuite) TestUnreadableMessage() {
	suite.message(" \n", "receipt-empty")
	suite.message("manifests/b.json", "receipt-b")
	suite.emptyQueue()
	suite.client.On("DeleteMessage", suite.queueURL, "receipt-empty").Return(nil).Once()
	input := NewSQSInput(suite.client, "work-items", 1, NewDefaultWorkItemReader(), logrus.New())
	input.Run()

	suite.Require().Equal("manifests/b.json", receiveWorkItem(suite.T(), input).WorkItemID)
	suite.Require().Nil(receiveWorkItem(suite.T(), input))
	input.CompletedWorkItemsInput() <- ""
	suite.client.AssertExpectations(suite.T())
	suite.client.AssertNotCalled(suite.T(), "DeleteMessage", suite.queueURL, "receipt-b")
}

func TestSQSInputTestSuite(t *testing.T) {
	suite.Run(t, new(SQSInputTestSuite))
}

func TestNewInputSource(t *testing.T) {
	conf := &TaskConfiguration{InputFilename: "index.txt"}
	require.IsType(t, &FilesystemInput{}, NewInputSource(conf, NewDefaultWorkItemReader(), nil, logrus.New()))
	conf.SingleWorkItem = true
	require.IsType(t, &SingleInputSource{}, NewInputSource(conf, NewDefaultWorkItemReader(), nil, logrus.New()))
	conf.InputQueue = "work-items"
	require.IsType(t, &SQSInput{}, NewInputSource(conf, NewDefaultWorkItemReader(), new(mockSQSClient), logrus.New()))
}
