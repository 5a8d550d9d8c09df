package commoncrawl

import (
	"github.com/sirupsen/logrus"
)

// LogStatusWriter sends status notifications to the console
type LogStatusWriter struct {
	logger logrus.FieldLogger
}

// NewLogStatusWriter returns a new instance of LogStatusWriter
func NewLogStatusWriter(logger logrus.FieldLogger) *LogStatusWriter {
	writer := new(LogStatusWriter)
	writer.logger = logger.WithField("component", "status_writer")
	return writer
}

// WriteStatus sends a notification about the current state of the system to the console.
// Plugin counters are logged as fields named after the counter.
func (writer *LogStatusWriter) WriteStatus(status ProcessStatus) {
	fields := logrus.Fields{
		"RecordsParsed":      status.RecordsParsed,
		"RecordsProcessed":   status.RecordsProcessed,
		"RecordsFailed":      status.RecordsFailed,
		"OutputsMapped":      status.OutputsMapped,
		"OutputsReduced":     status.OutputsReduced,
		"FilesInProcess":     status.FilesInProcess,
		"FilesParsed":        status.FilesParsed,
		"FilesFailed":        status.FilesFailed,
		"WorkItemsCompleted": status.WorkItemsCompleted,
	}
	for name, value := range status.Counters {
		fields[name] = value
	}
	logger := writer.logger.WithFields(fields)
	if status.ProcessComplete {
		logger.Info("Process complete")
		return
	}
	logger.Info("Process status")
}
