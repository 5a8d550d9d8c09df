package commoncrawl

import (
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// SingleInputSource implements the InputSource interface, and provides
// exactly one work item, such as every map output file under an S3 prefix
// for the reduce phase.
type SingleInputSource struct {
	message                 string
	workItemsOutput         chan *WorkItem
	completedWorkItemsInput chan string
	logger                  logrus.FieldLogger
	workItemReader          WorkItemReader // Lists files in S3 folders
}

// NewSingleInputSource returns a new instance of `SingleInputSource`
//
// * message - Input file, list of files or S3 prefix
// * workItemReader - Turns the message into a work item
// * logger - Log events
func NewSingleInputSource(message string, workItemReader WorkItemReader, logger logrus.FieldLogger) *SingleInputSource {
	input := new(SingleInputSource)
	input.message = message
	input.workItemsOutput = make(chan *WorkItem, 2)
	input.completedWorkItemsInput = make(chan string)
	input.logger = logger.WithField("component", "single_input")
	input.workItemReader = workItemReader
	return input
}

// Run launches its own goroutine.
// Sends the work item followed by the end of input.
func (input *SingleInputSource) Run() {
	go func() {
		defer CatchFatalError(input.logger)()
		workItem, err := input.workItemReader.ReadWorkItem(input.message)
		if err != nil {
			input.logger.Fatalf("Error reading work item: %v", err.Error())
		}
		workItem.WorkItemID = uuid.Must(uuid.NewV4()).String()
		input.logger.Infof("Sending work item with %v files", len(workItem.SourceFiles))
		input.workItemsOutput <- workItem
		input.workItemsOutput <- nil
		for workItemID := range input.completedWorkItemsInput {
			if workItemID == "" {
				return
			}
			input.logger.Infof("Work item '%v' saved", workItemID)
		}
	}()
}

// WorkItemsOutput returns an output channel of WorkItem
func (input *SingleInputSource) WorkItemsOutput() <-chan *WorkItem {
	return input.workItemsOutput
}

// CompletedWorkItemsInput returns an input channel of completed work item ids
func (input *SingleInputSource) CompletedWorkItemsInput() chan<- string {
	return input.completedWorkItemsInput
}
