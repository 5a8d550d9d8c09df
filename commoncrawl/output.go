package commoncrawl

import (
	"context"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultOutputStoreCapacity is set to 100K. This is the initial capacity of each output set in the OutputStore.
	DefaultOutputStoreCapacity = 100 * 1000
)

// OutputItem represents output data produced when mapping a record.
type OutputItem interface {
	// OutputSet indicates the output folder for the data
	OutputSet() string
	// Key is the unique identifier for this output. Items sharing a key are reduced together.
	Key() string
	// Line renders the item as one line of output text, without the trailing newline.
	Line() string
}

// OutputItems implements sort.Interface for []OutputItem based on
// the Key() return value.
type OutputItems []OutputItem

func (a OutputItems) Len() int           { return len(a) }
func (a OutputItems) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a OutputItems) Less(i, j int) bool { return a[i].Key() < a[j].Key() }

// An OutputReducer is responsible for reducing the values of OutputItems with the same key
// into a single OutputItem.
type OutputReducer interface {
	// Reduce merges two OutputItems with the same key into a single item.
	// newItem arrived after existingItem.
	Reduce(existingItem OutputItem, newItem OutputItem) OutputItem
}

// An OutputFilter can modify the stream of output items before they are processed by the OutputWriter
type OutputFilter interface {
	// TestOutputItem returns true if the output item should be saved
	TestOutputItem(item OutputItem) bool
}

// FlushRequest represents a request to flush the OutputStore
type FlushRequest struct {
	WorkItemID string                                  // ID of the completed work item that triggered the flush
	Callback   chan<- map[string]map[string]OutputItem // Callback for flushed data
}

// The OutputStore accumulates data that is output by the processor pool
//
// Each OutputItem that is sent to the OutputStore is accumulated by unique key returned by the Key() method.
// Upon receiving a flush signal, the OutputStore will send the current data set and clear it,
// resetting the OutputStore to its initial state.
type OutputStore struct {
	reducers            map[string]OutputReducer         // Map of output set to reducer
	data                map[string]map[string]OutputItem // Output set -> key -> reduced item
	dataInput           <-chan RecordOutput              // Input channel of OutputItems
	flushSignal         <-chan FlushRequest              // Input channel of flush signals
	outputReducedOutput chan<- string                    // Output channel of reduced outputs, by source file
	logger              logrus.FieldLogger               // Log events
}

// NewOutputStore returns a new instance of OutputStore
//
// * reducers - Map of output set to reducer
// * dataInput - Input channel of OutputItems
// * flushSignal - Input channel of flush signals
// * outputReducedOutput - Output channel of reduced outputs
// * logger - Log events
func NewOutputStore(
	reducers map[string]OutputReducer,
	dataInput <-chan RecordOutput,
	flushSignal <-chan FlushRequest,
	outputReducedOutput chan<- string,
	logger logrus.FieldLogger,
) *OutputStore {
	store := new(OutputStore)
	store.dataInput = dataInput
	store.flushSignal = flushSignal
	store.reducers = reducers
	store.outputReducedOutput = outputReducedOutput
	store.data = make(map[string]map[string]OutputItem)
	store.logger = logger.WithField("component", "store")
	return store
}

// store reduces one output item into the data set
func (store *OutputStore) store(outputItem OutputItem) {
	data, exists := store.data[outputItem.OutputSet()]
	if !exists {
		data = make(map[string]OutputItem, DefaultOutputStoreCapacity)
		store.data[outputItem.OutputSet()] = data
	}
	existingItem, exists := data[outputItem.Key()]
	if exists {
		reducer, has := store.reducers[outputItem.OutputSet()]
		if !has {
			store.logger.Fatalf("No reducer found for output item with output set '%v' and key '%v'", outputItem.OutputSet(), outputItem.Key())
		}
		outputItem = reducer.Reduce(existingItem, outputItem)
	}
	data[outputItem.Key()] = outputItem
}

// Run launches its own goroutine. The store will listen to both
// input channels. When it receives OutputItems from the dataInput channel,
// it will use the reducer to combine it with any existing OutputItem and save
// the result, or simply save the OutputItem if no previous entry exists.
// Upon receiving a flush signal, the entire data set will be returned on the
// provided channel, and a new empty dataset will replace it in the store.
func (store *OutputStore) Run(ctx context.Context) {
	go func() {
		defer CatchFatalError(store.logger)()
		for {
			select {
			case <-ctx.Done():
				return
			case recordOutput := <-store.dataInput:
				store.store(recordOutput.OutputItem)
				store.outputReducedOutput <- recordOutput.SourceFile
			case flushRequest := <-store.flushSignal:
				data := store.data
				store.data = make(map[string]map[string]OutputItem)
				flushRequest.Callback <- data
			}
		}
	}()
}
