package commoncrawl

import (
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
)

// A validator is a record that can check itself after decoding
type validator interface {
	Validate() error
}

// JSONReader implements the RecordReader interface. It will read an open
// file of newline delimited JSON objects and output one record per line.
// Lines that fail to decode or validate are counted and skipped.
type JSONReader struct {
	*BlobReader
	recordFactory func() interface{} // Create new records to receive json data
}

// NewJSONReader returns a new instance of JSONReader
//
// * recordFactory - Returns a pointer to decode each line into
// * logger - Log events
func NewJSONReader(recordFactory func() interface{}, logger logrus.FieldLogger) *JSONReader {
	reader := new(JSONReader)
	reader.BlobReader = NewBlobReader(logger)
	reader.recordFactory = recordFactory
	reader.logger = logger.WithField("component", "json_reader")
	return reader
}

// NewPageLocationReader returns a JSONReader producing *PageLocation records
func NewPageLocationReader(logger logrus.FieldLogger) *JSONReader {
	return NewJSONReader(func() interface{} { return new(PageLocation) }, logger)
}

// Read decodes each line of file and sends the record to callback.
//
// * file - The open file that should be read
// * callback - Should be called for each record that is read
func (reader *JSONReader) Read(file io.Reader, filename string, callback func(interface{})) error {
	parseErrCount := 0
	var firstErr error
	err := reader.BlobReader.Read(file, filename, func(blob interface{}) {
		record := reader.recordFactory()
		parseErr := json.Unmarshal(blob.([]byte), record)
		if parseErr == nil {
			if v, ok := record.(validator); ok {
				parseErr = v.Validate()
			}
		}
		if parseErr == nil {
			callback(record)
			return
		}
		if parseErrCount == 0 {
			firstErr = parseErr
		}
		parseErrCount++
	})
	if parseErrCount > 0 {
		reader.logger.WithField("filename", filename).Errorf(
			"%v errors when parsing records. First error is '%v'", parseErrCount, firstErr)
	}
	return err
}
