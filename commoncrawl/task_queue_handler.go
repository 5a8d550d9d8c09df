package commoncrawl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TaskQueueHandler pulls task configurations off of an SQS
// queue and runs a task for each one. A message is deleted only
// after its task succeeds.
type TaskQueueHandler struct {
	sqsClient sqsiface.SQSAPI
	queueURL  string
	task      func(context.Context, *TaskConfiguration) error
	logger    logrus.FieldLogger
}

// NewTaskQueueHandler returns a new instance of `TaskQueueHandler`
//
// * sqsClient - Client for the task queue
// * queueURL - URL of the task queue
// * task - Runs one task to completion
// * logger - Log events
func NewTaskQueueHandler(
	sqsClient sqsiface.SQSAPI,
	queueURL string,
	task func(context.Context, *TaskConfiguration) error,
	logger logrus.FieldLogger,
) *TaskQueueHandler {
	handler := new(TaskQueueHandler)
	handler.sqsClient = sqsClient
	handler.queueURL = queueURL
	handler.task = task
	handler.logger = logger.WithField("component", "task_queue")
	return handler
}

// Handle pulls at most one message off of SQS, parses it into a `TaskConfiguration`
// and runs the task. It returns false when the queue had no message.
func (handler *TaskQueueHandler) Handle(ctx context.Context) (bool, error) {
	receiveMessageOutput, err := handler.sqsClient.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(handler.queueURL),
		MaxNumberOfMessages: aws.Int64(1),
		WaitTimeSeconds:     aws.Int64(SQSWaitTimeSeconds),
	})
	if err != nil {
		return false, fmt.Errorf("receiving message from sqs: %w", err)
	}
	if len(receiveMessageOutput.Messages) == 0 {
		return false, nil
	}
	message := receiveMessageOutput.Messages[0]
	receiptHandle := aws.StringValue(message.ReceiptHandle)
	cfg := &TaskConfiguration{}
	if err := json.Unmarshal([]byte(aws.StringValue(message.Body)), cfg); err != nil {
		return true, fmt.Errorf("reading task configuration '%v': %w", aws.StringValue(message.Body), err)
	}
	cfg.ApplyEnvironment()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return true, err
	}
	if err := handler.task(ctx, cfg); err != nil {
		return true, err
	}
	// If the code reaches this point, the task completed normally
	_, err = handler.sqsClient.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(handler.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		handler.logger.Errorf("Error deleting message: receipt handle='%v', err='%v'", receiptHandle, err.Error())
	}
	return true, nil
}

// Drain handles tasks until the queue is empty or a task fails.
func (handler *TaskQueueHandler) Drain(ctx context.Context) error {
	for {
		handled, err := handler.Handle(ctx)
		if err != nil {
			return err
		}
		if !handled {
			handler.logger.Info("Task queue is empty")
			return nil
		}
	}
}

// RunScheduled drains the queue on every tick of a cron schedule until ctx is done.
// A tick is skipped while the previous drain is still running.
func (handler *TaskQueueHandler) RunScheduled(ctx context.Context, schedule string) error {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := scheduler.AddFunc(schedule, func() {
		if err := handler.Drain(ctx); err != nil {
			handler.logger.Errorf("Error draining task queue: '%v'", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule '%v': %w", schedule, err)
	}
	handler.logger.Infof("Draining task queue on schedule '%v'", schedule)
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}
