package commoncrawl

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"sort"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

const fileWriterPoolSize = 10

// Container struct to write sharded data using a worker pool
type shardedDataItem struct {
	shardNum    int
	shardedData []OutputItem
}

// The OutputWriter is responsible for persisting the output of common crawl processing.
// Items are split into shards by key hash so that every key of one output set lands
// in the same shard folder across all tasks.
type OutputWriter struct {
	fileWriter   OutputFileWriter   // Write output files
	outputFolder string             // Folder that will contain output files
	logger       logrus.FieldLogger // Log events
	shards       int                // Number of shards for output
}

// NewOutputWriter returns a new instance of OutputWriter
//
// * fileWriter - Write output files
// * outputFolder - Folder that will contain output files
// * logger - Log events
// * shards - Number of shards for output
func NewOutputWriter(
	fileWriter OutputFileWriter,
	outputFolder string,
	logger logrus.FieldLogger,
	shards int,
) *OutputWriter {
	outputWriter := new(OutputWriter)
	outputWriter.fileWriter = fileWriter
	outputWriter.outputFolder = outputFolder
	outputWriter.logger = logger.WithField("component", "output_writer")
	outputWriter.shards = shards
	if outputWriter.shards < 1 {
		outputWriter.shards = 1
	}
	return outputWriter
}

// ShardFor returns the shard a key is written to
func (writer *OutputWriter) ShardFor(key string) int {
	return int(hash(key) % uint32(writer.shards))
}

// EncodeOutputItems renders items as gzip compressed lines, sorted by key.
// Sorting lets a later sort-merge combine files efficiently.
func EncodeOutputItems(items []OutputItem) ([]byte, error) {
	sort.Sort(OutputItems(items))
	// S3 requires a readseeker, which means caching the entire file in memory
	// prior to sending it to S3.
	buffer := new(bytes.Buffer)
	gzWriter := gzip.NewWriter(buffer)
	lineWriter := bufio.NewWriter(gzWriter)
	for _, item := range items {
		lineWriter.WriteString(item.Line())
		lineWriter.WriteByte('\n')
	}
	if err := lineWriter.Flush(); err != nil {
		return nil, fmt.Errorf("flushing line writer: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buffer.Bytes(), nil
}

// WriteOutputData writes one output set to its shard folders.
// Empty shards produce no file.
//
// * outputSet - Name of the output set
// * data - Data that should be persisted.
func (writer *OutputWriter) WriteOutputData(outputSet string, data []OutputItem) error {
	dataShards := make([][]OutputItem, writer.shards)
	for _, outputItem := range data {
		shardNum := writer.ShardFor(outputItem.Key())
		dataShards[shardNum] = append(dataShards[shardNum], outputItem)
	}

	queue := make(chan *shardedDataItem)
	var wg sync.WaitGroup
	var errMutex sync.Mutex
	var firstErr error
	worker := func() {
		defer wg.Done()
		for item := range queue {
			filename := fmt.Sprintf("%v/%v/%05v/%v.txt.gz", writer.outputFolder, outputSet, item.shardNum, uuid.Must(uuid.NewV4()).String())
			logger := writer.logger.WithField("filename", filename)
			filedata, err := EncodeOutputItems(item.shardedData)
			if err == nil {
				err = writer.fileWriter.WriteOutputFile(filename, filedata)
			}
			if err != nil {
				logger.Errorf("Error writing file: '%v'", err.Error())
				errMutex.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMutex.Unlock()
			}
		}
	}
	for i := 0; i < fileWriterPoolSize; i++ {
		wg.Add(1)
		go worker()
	}
	for shardNum, shardedData := range dataShards {
		if len(shardedData) == 0 {
			continue
		}
		queue <- &shardedDataItem{
			shardedData: shardedData,
			shardNum:    shardNum,
		}
	}
	close(queue)
	wg.Wait()
	writer.logger.Infof("%v items of output set '%v' have been written", len(data), outputSet)
	return firstErr
}

// OutputFileWriter writes specific output files.
type OutputFileWriter interface {
	// Write out the specified file
	WriteOutputFile(filepath string, data []byte) error
}
