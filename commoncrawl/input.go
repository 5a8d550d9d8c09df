package commoncrawl

import (
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/sirupsen/logrus"
)

// An InputSource represents the source of work items to be processed
type InputSource interface {
	// Run launches its own goroutine.
	// Begins reading input and producing WorkItem instances for processing.
	// A nil WorkItem marks the end of input.
	Run()
	// WorkItemsOutput returns an output channel of WorkItem
	WorkItemsOutput() <-chan *WorkItem
	// CompletedWorkItemsInput returns an input channel of completed work item ids.
	// An empty id tells the source to shut down.
	CompletedWorkItemsInput() chan<- string
}

// NewInputSource returns an InputSource instance based on configuration.
func NewInputSource(conf *TaskConfiguration, workItemReader WorkItemReader, sqsClient sqsiface.SQSAPI, logger logrus.FieldLogger) InputSource {
	if conf.InputQueue != "" {
		return NewSQSInput(sqsClient, conf.InputQueue, conf.QueueIdleReceives, workItemReader, logger)
	}
	if conf.SingleWorkItem {
		return NewSingleInputSource(conf.InputFilename, workItemReader, logger)
	}
	return NewFilesystemInput(conf.InputFilename, conf.CheckpointFile, workItemReader, logger)
}
