package commoncrawl

import (
	"context"

	"github.com/sirupsen/logrus"
)

const (
	// FrameworkCounterGroup holds counters maintained by the framework itself
	FrameworkCounterGroup = "commoncrawl"
	// RecordsFailedCounter counts records whose mapper returned an error
	RecordsFailedCounter = "records_failed"
)

// Counters receives observability counters from mappers
type Counters interface {
	// IncrementCounter adds amount to the named counter
	IncrementCounter(group string, name string, amount int)
}

// A RecordMapper is responsible for converting a record object
// into the desired output form.
//
// The RecordMapper should be able to accept input for the configured RecordReader
type RecordMapper interface {
	// Maps a record into zero to many OutputItems.
	//
	// * ctx - Cancelled when the task shuts down
	// * record - A record object produced by the RecordReader
	// * output - Each OutputItem that is sent to this callback will be reduced in the output.
	// * counters - Observability counters, aggregated by the monitor
	//
	// An error means the record produced no usable output.
	MapRecord(ctx context.Context, record interface{}, output func(OutputItem), counters Counters) error
}

// A RecordOutput wraps and OutputItem and refers to the source file
type RecordOutput struct {
	WorkItemID string     // Name of the work item associated with the file
	SourceFile string     // Name of the file where the data originated
	OutputItem OutputItem // Output data
}

// RecordProcessed is emitted once every mapper has handled a record
type RecordProcessed struct {
	SourceFile string // Name of the file where the record originated
	Outputs    int    // Number of OutputItems sent downstream for the record
	Failed     bool   // True if a mapper returned an error
}

// CounterIncrement is a single counter update
type CounterIncrement struct {
	Group  string
	Name   string
	Amount int
}

type counterChannel chan<- CounterIncrement

func (counters counterChannel) IncrementCounter(group string, name string, amount int) {
	counters <- CounterIncrement{Group: group, Name: name, Amount: amount}
}

// A RecordProcessor is responsible for converting a stream of
// parsed records into a stream of output data.
type RecordProcessor struct {
	mappers                 []RecordMapper         // Used to convert each record into OutputItems
	recordInput             <-chan ParsedRecord    // Input channel of record objects
	dataOutput              chan<- RecordOutput    // Output channel of OutputItem objects
	recordProcessedListener chan<- RecordProcessed // Listener for completed records
	counters                counterChannel         // Listener for counter updates
	failOnError             bool                   // Abort the task when a mapper fails
	logger                  logrus.FieldLogger     // Log events
}

// NewRecordProcessor returns a new instance of RecordProcessor
//
// * mappers - Used to convert each record into `OutputItems`
// * recordInput - Input channel of record objects
// * dataOutput - Output channel of OutputItem objects
// * recordProcessedListener - Listener for completed records
// * counterListener - Listener for counter updates
// * failOnError - Abort the task when a mapper fails instead of skipping the record
// * logger - Log events
func NewRecordProcessor(
	mappers []RecordMapper,
	recordInput <-chan ParsedRecord,
	dataOutput chan<- RecordOutput,
	recordProcessedListener chan<- RecordProcessed,
	counterListener chan<- CounterIncrement,
	failOnError bool,
	logger logrus.FieldLogger,
) *RecordProcessor {
	processor := new(RecordProcessor)
	processor.mappers = mappers
	processor.recordInput = recordInput
	processor.dataOutput = dataOutput
	processor.recordProcessedListener = recordProcessedListener
	processor.counters = counterChannel(counterListener)
	processor.failOnError = failOnError
	processor.logger = logger.WithField("component", "processor")
	return processor
}

// processRecord runs every mapper over one record. A failing mapper
// does not stop the remaining mappers.
func (processor *RecordProcessor) processRecord(ctx context.Context, record ParsedRecord) RecordProcessed {
	processed := RecordProcessed{SourceFile: record.SourceFile}
	for _, mapper := range processor.mappers {
		err := mapper.MapRecord(ctx, record.Record, func(outputItem OutputItem) {
			processor.dataOutput <- RecordOutput{
				WorkItemID: record.WorkItemID,
				SourceFile: record.SourceFile,
				OutputItem: outputItem,
			}
			processed.Outputs++
		}, processor.counters)
		if err == nil {
			continue
		}
		logger := processor.logger.WithField("filename", record.SourceFile)
		if processor.failOnError {
			logger.Fatalf("Error mapping record: '%v'", err.Error())
		}
		logger.Warnf("Skipping record: '%v'", err.Error())
		processed.Failed = true
	}
	if processed.Failed {
		processor.counters.IncrementCounter(FrameworkCounterGroup, RecordsFailedCounter, 1)
	}
	return processed
}

// Run launches its own goroutine. It will begin pulling records
// from recordInput, converting them to OutputItem objects, and sending each
// OutputItem object to dataOutput. Listeners will be notified when each
// record is processed.
func (processor *RecordProcessor) Run(ctx context.Context) {
	go func() {
		defer CatchFatalError(processor.logger)()
		for {
			select {
			case <-ctx.Done():
				return
			case record, ok := <-processor.recordInput:
				if !ok {
					return
				}
				processor.recordProcessedListener <- processor.processRecord(ctx, record)
			}
		}
	}()
}
