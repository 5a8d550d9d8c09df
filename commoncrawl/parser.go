package commoncrawl

import (
	"io"

	"github.com/sirupsen/logrus"
)

// A RecordReader is responsible for outputting a stream
// of records from an open file.
type RecordReader interface {
	// Reads a file and sends a stream of record objects to callback
	//
	// * file - The open file that should be read
	// * filename - Name of the file, for logging
	// * callback - Should be called for each record that is read
	Read(file io.Reader, filename string, callback func(interface{})) error
}

// A ParsedRecord is the output of a Parser
type ParsedRecord struct {
	WorkItemID string      // Name of the work item associated with the file
	SourceFile string      // Name of the file where the record originated
	Record     interface{} // Contents of the record
}

// FileParsed is emitted once a file has been read to the end
type FileParsed struct {
	Filename string // Name of the file
	Records  int    // Number of records sent downstream from the file
	Failed   bool   // True if the file could not be opened or read completely
}

// A Parser is responsible for parsing raw input files
// into record objects.
type Parser struct {
	reader             RecordReader        // Reads files into records
	fileInput          <-chan FileDownload // Input channel of FileDownload instances
	recordOutput       chan<- ParsedRecord // Output channel of record instances
	fileParsedListener chan<- FileParsed   // Listener for completion of file parsing
	logger             logrus.FieldLogger  // Log events
}

// NewParser returns a new instance of Parser
//
// * reader - Reads files into records
// * fileInput - Input channel of FileDownload instances
// * recordOutput - Output channel of record instances
// * fileParsedListener - Notified when a file is completely parsed
// * logger - Log events
func NewParser(
	reader RecordReader,
	fileInput <-chan FileDownload,
	recordOutput chan<- ParsedRecord,
	fileParsedListener chan<- FileParsed,
	logger logrus.FieldLogger,
) *Parser {
	parser := new(Parser)
	parser.reader = reader
	parser.fileInput = fileInput
	parser.recordOutput = recordOutput
	parser.fileParsedListener = fileParsedListener
	parser.logger = logger.WithField("component", "parser")
	return parser
}

// parseFile accepts a FileDownload object and emits
// a series of records through recordOutput. The listener
// learns the record count once the file has been completely parsed.
func (parser *Parser) parseFile(file FileDownload) {
	logger := parser.logger.WithField("filename", file.Filename())
	parsed := FileParsed{Filename: file.Filename()}
	handle, err := file.Open()
	if err != nil {
		logger.Errorf("Error opening file: '%v'", err.Error())
		parsed.Failed = true
		parser.fileParsedListener <- parsed
		return
	}
	defer handle.Close()
	err = parser.reader.Read(handle, file.Filename(), func(record interface{}) {
		parser.recordOutput <- ParsedRecord{
			WorkItemID: file.WorkItemID(),
			SourceFile: file.Filename(),
			Record:     record,
		}
		parsed.Records++
	})
	if err != nil {
		logger.Errorf("Error reading file after %v records: '%v'", parsed.Records, err.Error())
		parsed.Failed = true
	}
	parser.fileParsedListener <- parsed
}

// Run launches its own goroutine. It will begin pulling FileDownload objects from
// fileInput and sending parsed records to recordOutput.
func (parser *Parser) Run() {
	go func() {
		defer CatchFatalError(parser.logger)()
		for file := range parser.fileInput {
			parser.parseFile(file)
		}
	}()
}
