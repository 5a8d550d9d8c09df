package commoncrawl

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/sirupsen/logrus"
)

// SQSWaitTimeSeconds is the long poll duration of each receive
const SQSWaitTimeSeconds = 20

// SQSInput polls an SQS queue for work items and pushes each one
// to an output channel for downstream processing. Messages are deleted
// once their work item has been saved. After a number of empty receives
// in a row the queue is considered drained and a nil work item is sent.
type SQSInput struct {
	sqsClient               sqsiface.SQSAPI    // Client for the queue
	sqsQueueName            string             // Name of the queue that will provide work items
	idleReceives            int                // Empty receives in a row that end the input
	workItemsOutput         chan *WorkItem     // Output channel of WorkItem
	completedWorkItemsInput chan string        // Input channel of completed work item ids
	logger                  logrus.FieldLogger // Log events
	workItemReader          WorkItemReader     // Reads work items from queue messages
}

// NewSQSInput returns a new instance of SQSInput
//
// * sqsClient - Client for the queue
// * sqsQueueName - Name of SQS queue that should be polled for work items
// * idleReceives - Empty receives in a row that end the input
// * workItemReader - Reads work items from queue messages
// * logger - Log events
func NewSQSInput(
	sqsClient sqsiface.SQSAPI,
	sqsQueueName string,
	idleReceives int,
	workItemReader WorkItemReader,
	logger logrus.FieldLogger,
) *SQSInput {
	input := new(SQSInput)
	input.sqsClient = sqsClient
	input.sqsQueueName = sqsQueueName
	input.idleReceives = idleReceives
	if input.idleReceives < 1 {
		input.idleReceives = DefaultQueueIdleReceives
	}
	input.workItemsOutput = make(chan *WorkItem)
	input.completedWorkItemsInput = make(chan string)
	input.logger = logger.WithField("component", "sqs_input")
	input.workItemReader = workItemReader
	return input
}

// WorkItemsOutput returns an output channel of WorkItem
func (input *SQSInput) WorkItemsOutput() <-chan *WorkItem {
	return input.workItemsOutput
}

// CompletedWorkItemsInput returns an input channel of completed work item ids
func (input *SQSInput) CompletedWorkItemsInput() chan<- string {
	return input.completedWorkItemsInput
}

// nextWorkItem receives messages until one parses into a work item,
// or returns nil once the queue stays empty.
func (input *SQSInput) nextWorkItem(queueURL *string, messages map[string]string) *WorkItem {
	idle := 0
	for idle < input.idleReceives {
		messageOutput, err := input.sqsClient.ReceiveMessage(&sqs.ReceiveMessageInput{
			QueueUrl:            queueURL,
			MaxNumberOfMessages: aws.Int64(1),
			WaitTimeSeconds:     aws.Int64(SQSWaitTimeSeconds),
		})
		if err != nil {
			input.logger.Fatalf("Error getting items from the queue: '%v'", err.Error())
		}
		if len(messageOutput.Messages) == 0 {
			idle++
			continue
		}
		idle = 0
		for _, msg := range messageOutput.Messages {
			body := aws.StringValue(msg.Body)
			workItem, err := input.workItemReader.ReadWorkItem(body)
			if err == nil {
				messages[workItem.WorkItemID] = aws.StringValue(msg.ReceiptHandle)
				return workItem
			}
			input.logger.Errorf("Error reading work item for '%v': '%v'", body, err.Error())
			input.deleteMessage(queueURL, aws.StringValue(msg.ReceiptHandle))
		}
	}
	input.logger.Infof("Queue '%v' is drained", input.sqsQueueName)
	return nil
}

func (input *SQSInput) deleteMessage(queueURL *string, receiptHandle string) {
	_, err := input.sqsClient.DeleteMessage(&sqs.DeleteMessageInput{
		QueueUrl:      queueURL,
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		input.logger.Errorf("Error deleting message from queue: '%v'", err.Error())
	}
}

// Run launches its own goroutine. It will poll the queue and emit each
// work item to `workItemsOutput`, then a nil item once the queue is drained.
func (input *SQSInput) Run() {
	go func() {
		defer CatchFatalError(input.logger)()

		input.logger.Info("sqs input starting up")
		getURLOutput, err := input.sqsClient.GetQueueUrl(&sqs.GetQueueUrlInput{
			QueueName: aws.String(input.sqsQueueName),
		})
		if err != nil {
			input.logger.WithField("queueName", input.sqsQueueName).Fatalf("Error getting queue url: '%v'", err.Error())
		}
		queueURL := getURLOutput.QueueUrl
		// Keep track of queue messages so that they can be deleted
		// once the work items have been saved
		messages := map[string]string{}
		workItemsOutput := input.workItemsOutput
		workItem := input.nextWorkItem(queueURL, messages)
		for {
			select {
			case workItemID := <-input.completedWorkItemsInput:
				if workItemID == "" {
					input.logger.Infof("SQS input shutting down")
					return
				}
				input.logger.Infof("Received completed work item '%v'", workItemID)
				messageReceipt, ok := messages[workItemID]
				if !ok {
					input.logger.Errorf("Received completed work item without matching receipt: '%v'", workItemID)
					continue
				}
				input.deleteMessage(queueURL, messageReceipt)
				delete(messages, workItemID)
			case workItemsOutput <- workItem:
				if workItem == nil {
					workItemsOutput = nil
					continue
				}
				workItem = input.nextWorkItem(queueURL, messages)
			}
		}
	}()
}
