package commoncrawl

import (
	"github.com/sirupsen/logrus"
)

const (
	// CompletedFilenamesPath is the default path to the file listing work items saved by earlier runs
	CompletedFilenamesPath = "completed-files.txt"
)

// FilesystemInput reads in a list of work items from a local index file
// and pushes each one to an output channel for downstream processing.
// Work items that have already been marked as completed from previous checkpoints
// will not be sent. A nil work item follows the last line of the index.
type FilesystemInput struct {
	indexFile               string             // Path to the index file, one work item per line
	checkpointFile          string             // Path to the list of completed work items
	completedFilenames      []string           // Work items marked completed in previous checkpoints
	completedFileLookup     map[string]bool    // Set of completed work items, included for efficient lookup
	workItemsOutput         chan *WorkItem     // Output channel of WorkItem
	completedWorkItemsInput chan string        // Input channel of completed work item ids
	workItemReader          WorkItemReader     // Reads work items from index lines
	logger                  logrus.FieldLogger // Log events
	lineIndex               int                // Keep track of place in file
}

// NewFilesystemInput returns a new instance of FilesystemInput
//
// * indexFile - Path to the index file, one work item per line
// * checkpointFile - Path to the list of completed work items
// * workItemReader - Reads work items from index lines
// * logger - Log events
func NewFilesystemInput(indexFile string, checkpointFile string, workItemReader WorkItemReader, logger logrus.FieldLogger) *FilesystemInput {
	input := new(FilesystemInput)
	input.indexFile = indexFile
	input.checkpointFile = checkpointFile
	if input.checkpointFile == "" {
		input.checkpointFile = CompletedFilenamesPath
	}
	input.workItemsOutput = make(chan *WorkItem)
	input.completedWorkItemsInput = make(chan string)
	input.completedFileLookup = map[string]bool{}
	input.workItemReader = workItemReader
	input.logger = logger.WithField("component", "filesystem_input")
	return input
}

// WorkItemsOutput returns an output channel of WorkItem
func (input *FilesystemInput) WorkItemsOutput() <-chan *WorkItem {
	return input.workItemsOutput
}

// CompletedWorkItemsInput returns an input channel of completed work item ids
func (input *FilesystemInput) CompletedWorkItemsInput() chan<- string {
	return input.completedWorkItemsInput
}

// loadCompletedFiles loads the list of work items that have already been processed.
func (input *FilesystemInput) loadCompletedFiles() {
	err := CreateFileIfAbsent(input.checkpointFile)
	if err != nil {
		panic(err)
	}
	completedFilenames, err := LoadFileLines(input.checkpointFile)
	if err != nil {
		panic(err)
	}
	for _, filename := range completedFilenames {
		if filename == "" {
			continue
		}
		input.completedFilenames = append(input.completedFilenames, filename)
		input.completedFileLookup[filename] = true
	}
}

func (input *FilesystemInput) addCompletedFile(completedFile string) {
	input.completedFilenames = append(input.completedFilenames, completedFile)
	input.completedFileLookup[completedFile] = true
	if err := WriteFileLines(input.checkpointFile, input.completedFilenames); err != nil {
		input.logger.Errorf("Error saving checkpoint: '%v'", err.Error())
	}
}

func (input *FilesystemInput) nextWorkItem(lines []string) *WorkItem {
	for input.lineIndex < len(lines) {
		line := lines[input.lineIndex]
		input.lineIndex++
		if line == "" || input.completedFileLookup[line] {
			continue
		}
		workItem, err := input.workItemReader.ReadWorkItem(line)
		if err == nil {
			return workItem
		}
		input.logger.Errorf("Error reading work item '%v': '%v'", line, err.Error())
	}
	return nil
}

// Run launches its own goroutine. It will read the list of work items
// found in `indexFile` and emit each one to `workItemsOutput`, then a nil item.
func (input *FilesystemInput) Run() {
	go func() {
		defer CatchFatalError(input.logger)()
		input.loadCompletedFiles()
		lines, err := LoadFileLines(input.indexFile)
		if err != nil {
			input.logger.Fatalf("Error loading index file '%v': '%v'", input.indexFile, err.Error())
		}
		workItemsOutput := input.workItemsOutput
		workItem := input.nextWorkItem(lines)
		for {
			select {
			case completedFile := <-input.completedWorkItemsInput:
				if completedFile == "" {
					input.logger.Info("FilesystemInput shutting down")
					return
				}
				input.addCompletedFile(completedFile)
			case workItemsOutput <- workItem:
				if workItem == nil {
					// end of input has been sent
					workItemsOutput = nil
					continue
				}
				workItem = input.nextWorkItem(lines)
			}
		}
	}()
}
