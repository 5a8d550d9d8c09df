package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/ssalevan/cc-yt-sentiment/commoncrawl"
	"github.com/ssalevan/cc-yt-sentiment/sentiment"
)

var errTaskFailed = errors.New("some work items were not saved")

// runTask processes one task configuration to completion
func runTask(ctx context.Context, conf *commoncrawl.TaskConfiguration, logger logrus.FieldLogger) error {
	clock := clockwork.NewRealClock()
	sess, err := commoncrawl.NewAWSSession(conf.AWS)
	if err != nil {
		return fmt.Errorf("creating aws session: %w", err)
	}
	s3Client := commoncrawl.NewS3Client(sess, conf.AWS)
	sqsClient := commoncrawl.NewSQSClient(sess, conf.AWS)

	var recordReader commoncrawl.RecordReader
	if conf.Phase == commoncrawl.PhaseMap {
		recordReader = commoncrawl.NewPageLocationReader(logger)
	} else {
		recordReader = commoncrawl.NewBlobReader(logger)
	}
	var fileWriter commoncrawl.OutputFileWriter
	if conf.LocalOutput {
		fileWriter = new(commoncrawl.LocalOutputFileWriter)
	} else {
		fileWriter = commoncrawl.NewS3OutputFileWriter(s3Client, conf.OutputBucket, clock)
	}
	workItemReader, err := commoncrawl.NewWorkItemReader(conf, s3Client)
	if err != nil {
		return err
	}

	endOfProcess := make(chan bool)
	controller, err := commoncrawl.NewController(&commoncrawl.ControllerConfiguration{
		TaskConfiguration: conf,
		Plugins: map[string]commoncrawl.Plugin{
			sentiment.PluginName: sentiment.NewPlugin(),
		},
		InputSource:      commoncrawl.NewInputSource(conf, workItemReader, sqsClient, logger),
		EndOfProcess:     endOfProcess,
		RecordReader:     recordReader,
		OutputFileWriter: fileWriter,
		S3Client:         s3Client,
		Clock:            clock,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	controller.Run(ctx)
	if ok := <-endOfProcess; !ok {
		return errTaskFailed
	}
	return nil
}

func main() {
	configPath := flag.String("config", "task.yaml", "task configuration file")
	taskQueue := flag.String("task-queue", "", "SQS queue url of task configurations; replaces -config")
	schedule := flag.String("schedule", "", "cron schedule to drain -task-queue on, e.g. \"@every 10m\"; drains once when empty")
	verbose := flag.Bool("verbose", false, "log debug messages")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *taskQueue != "" {
		queueConf := &commoncrawl.TaskConfiguration{}
		queueConf.ApplyEnvironment()
		queueConf.ApplyDefaults()
		sess, err := commoncrawl.NewAWSSession(queueConf.AWS)
		if err != nil {
			logger.Fatalf("Error creating aws session: '%v'", err.Error())
		}
		handler := commoncrawl.NewTaskQueueHandler(
			commoncrawl.NewSQSClient(sess, queueConf.AWS),
			*taskQueue,
			func(ctx context.Context, conf *commoncrawl.TaskConfiguration) error {
				return runTask(ctx, conf, logger)
			},
			logger)
		if *schedule != "" {
			if err := handler.RunScheduled(ctx, *schedule); err != nil {
				logger.Fatalf("Error scheduling task queue: '%v'", err.Error())
			}
			return
		}
		if err := handler.Drain(ctx); err != nil {
			logger.Errorf("Task failed: '%v'", err.Error())
			os.Exit(1)
		}
		return
	}

	conf, err := commoncrawl.LoadTaskConfiguration(*configPath)
	if err != nil {
		logger.Fatalf("Error loading configuration: '%v'", err.Error())
	}
	if err := runTask(ctx, conf, logger); err != nil {
		logger.Errorf("Task failed: '%v'", err.Error())
		os.Exit(1)
	}
	logger.Info("Done!")
}
