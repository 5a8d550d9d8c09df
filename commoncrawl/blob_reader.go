package commoncrawl

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"

	"github.com/sirupsen/logrus"
)

// MaxLineSize bounds a single input line
const MaxLineSize = 16 * 1024 * 1024

var gzipMagic = []byte{0x1f, 0x8b}

// BlobReader implements the RecordReader interface. It will read an open
// file and output a stream of byte slices, one per non-empty line.
// Input files may be plain text or gzip compressed.
// Newline characters are not included in the output.
type BlobReader struct {
	logger logrus.FieldLogger // Log events
}

// NewBlobReader returns a new instance of BlobReader
//
// * logger - Log events
func NewBlobReader(logger logrus.FieldLogger) *BlobReader {
	reader := new(BlobReader)
	reader.logger = logger.WithField("component", "blob_reader")
	return reader
}

// Read sends every trimmed, non-empty line of file to callback.
//
// * file - The open file that should be read
// * callback - Should be called for each record that is read
func (reader *BlobReader) Read(file io.Reader, filename string, callback func(interface{})) error {
	buffered := bufio.NewReader(file)
	var source io.Reader = buffered
	if magic, err := buffered.Peek(2); err == nil && bytes.Equal(magic, gzipMagic) {
		gzReader, err := gzip.NewReader(buffered)
		if err != nil {
			return err
		}
		defer gzReader.Close()
		source = gzReader
	}
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// the scanner reuses its buffer
		record := make([]byte, len(line))
		copy(record, line)
		callback(record)
	}
	return scanner.Err()
}
