package commoncrawl

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	// MonitorLogInterval is interval between each log message from the monitor
	MonitorLogInterval = time.Second * 10
	// ProcessStuckTimeout is the amount of time the monitor will wait for some update
	// before killing the process
	ProcessStuckTimeout = time.Minute * 10
	// FileStuckTimeout is the amount of time the monitor will wait for some update to
	// a file before giving up on processing it.
	FileStuckTimeout = time.Minute * 5
)

// A StatusWriter is responsible for conveying the current state of the system.
// The details of how this is done is left up to the implementation.
type StatusWriter interface {
	// WriteStatus sends a notification about the current state of the system.
	WriteStatus(status ProcessStatus)
}

// ProcessStatus represents the current state of the common crawl process
type ProcessStatus struct {
	LastUpdate         time.Time      // Last time the process received any kind of update
	RecordsParsed      int            // Total # of records parsed
	RecordsProcessed   int            // Total # of records fully processed
	RecordsFailed      int            // Total # of records skipped because a mapper failed
	OutputsMapped      int            // Total # of outputs mapped
	OutputsReduced     int            // Total # of outputs reduced
	FilesInProcess     int            // # of files currently being processed
	FilesParsed        int            // Total # of files parsed
	FilesFailed        int            // Total # of files that could not be read completely
	WorkItemsCompleted int            // Total # of work items handed back for saving
	Counters           map[string]int // Plugin counters, keyed by "group/name"
	ProcessComplete    bool           // True if process is completed
}

// FileStatus represents the current state of a single input file
type FileStatus struct {
	LastUpdate      time.Time
	Parsed          bool // The parser reached the end of the file
	Records         int  // Records the parser sent downstream
	Processed       int  // Records handled by the processors
	ExpectedOutputs int  // Outputs mapped from the processed records
	Reduced         int  // Outputs stored by the output store
}

func (stat *FileStatus) complete() bool {
	return stat.Parsed && stat.Processed == stat.Records && stat.Reduced == stat.ExpectedOutputs
}

// WorkItemStatus represents the current state of a work item
type WorkItemStatus struct {
	WorkItem       *WorkItem
	CompletedFiles int
}

// The Monitor receives signals from other parts in the system, prints out
// aggregated metrics at a regular interval, and emits a work item id once
// every record of the work item has been reduced, so that its data can be saved.
// After the last work item it emits an empty id, marking the end of the process.
type Monitor struct {
	statusWriter             StatusWriter               // Sends status notifications
	clock                    clockwork.Clock            // Emits events at an interval
	workItemReceivedInput    <-chan *WorkItem           // Input channel of work items, nil marks the end of input
	filesParsedInput         <-chan FileParsed          // Input channel of files fully parsed
	recordsProcessedInput    <-chan RecordProcessed     // Input channel of processed records
	outputsReducedInput      <-chan string              // Input channel of reduced outputs
	counterInput             <-chan CounterIncrement    // Input channel of counter updates
	completedWorkItemsOutput chan<- string              // Output channel of completed work items
	logger                   logrus.FieldLogger         // Log events
	status                   ProcessStatus              // Aggregated state
	files                    map[string]*FileStatus     // Files in process
	workItems                map[string]*WorkItemStatus // Filename to work item
	pending                  []string                   // Completed work items not yet handed over
	endOfInput               bool                       // No more work items will arrive
}

// NewMonitor returns a new instance of Monitor
//
// * statusWriter - Sends status notifications
// * clock - Emits events at an interval
// * workItemReceivedInput - Input channel of work items, nil marks the end of input
// * filesParsedInput - Input channel of files fully parsed
// * recordsProcessedInput - Input channel of processed records
// * outputsReducedInput - Input channel of reduced outputs
// * counterInput - Input channel of counter updates
// * completedWorkItemsOutput - Output channel of completed work items
// * logger - Log events
func NewMonitor(
	statusWriter StatusWriter,
	clock clockwork.Clock,
	workItemReceivedInput <-chan *WorkItem,
	filesParsedInput <-chan FileParsed,
	recordsProcessedInput <-chan RecordProcessed,
	outputsReducedInput <-chan string,
	counterInput <-chan CounterIncrement,
	completedWorkItemsOutput chan<- string,
	logger logrus.FieldLogger,
) *Monitor {
	monitor := new(Monitor)
	monitor.statusWriter = statusWriter
	monitor.clock = clock
	monitor.workItemReceivedInput = workItemReceivedInput
	monitor.filesParsedInput = filesParsedInput
	monitor.recordsProcessedInput = recordsProcessedInput
	monitor.outputsReducedInput = outputsReducedInput
	monitor.counterInput = counterInput
	monitor.completedWorkItemsOutput = completedWorkItemsOutput
	monitor.logger = logger.WithField("component", "monitor")
	monitor.status = ProcessStatus{Counters: map[string]int{}}
	monitor.files = map[string]*FileStatus{}
	monitor.workItems = map[string]*WorkItemStatus{}
	return monitor
}

// file returns the status of a file, creating it on first sight
func (monitor *Monitor) file(filename string) *FileStatus {
	now := monitor.clock.Now()
	monitor.status.LastUpdate = now
	stat, ok := monitor.files[filename]
	if !ok {
		stat = &FileStatus{}
		monitor.files[filename] = stat
		monitor.status.FilesInProcess++
	}
	stat.LastUpdate = now
	return stat
}

// completeFile retires a file and queues its work item once every file is done.
// Files are kept until their work item is known.
func (monitor *Monitor) completeFile(filename string) {
	workItemStat, ok := monitor.workItems[filename]
	if !ok {
		return
	}
	delete(monitor.workItems, filename)
	delete(monitor.files, filename)
	monitor.status.FilesInProcess--
	workItemStat.CompletedFiles++
	if workItemStat.CompletedFiles == len(workItemStat.WorkItem.SourceFiles) {
		monitor.pending = append(monitor.pending, workItemStat.WorkItem.WorkItemID)
	}
}

func (monitor *Monitor) checkFile(filename string) {
	if stat, ok := monitor.files[filename]; ok && stat.complete() {
		monitor.completeFile(filename)
	}
}

func (monitor *Monitor) receiveWorkItem(workItem *WorkItem) {
	if workItem == nil {
		monitor.logger.Info("End of input detected")
		monitor.endOfInput = true
		return
	}
	monitor.logger.Infof("Work item received: '%v'", workItem.WorkItemID)
	if len(workItem.SourceFiles) == 0 {
		monitor.pending = append(monitor.pending, workItem.WorkItemID)
		return
	}
	stat := &WorkItemStatus{WorkItem: workItem}
	for _, filename := range workItem.SourceFiles {
		monitor.workItems[filename] = stat
	}
	for _, filename := range workItem.SourceFiles {
		monitor.checkFile(filename)
	}
}

// snapshot copies the status so that writers never share the counter map
func (monitor *Monitor) snapshot() ProcessStatus {
	status := monitor.status
	status.Counters = make(map[string]int, len(monitor.status.Counters))
	for name, value := range monitor.status.Counters {
		status.Counters[name] = value
	}
	return status
}

// done reports whether every received work item has been handed over
func (monitor *Monitor) done() bool {
	return monitor.endOfInput && len(monitor.workItems) == 0 && len(monitor.pending) == 0
}

// audit logs stuck files and gives up on them
func (monitor *Monitor) audit() {
	if monitor.clock.Since(monitor.status.LastUpdate) > ProcessStuckTimeout {
		monitor.logger.Fatal("Stuck process detected, Exiting")
	}
	for filename, stat := range monitor.files {
		if monitor.clock.Since(stat.LastUpdate) < FileStuckTimeout {
			continue
		}
		monitor.logger.WithFields(logrus.Fields{
			"Records":         stat.Records,
			"Processed":       stat.Processed,
			"ExpectedOutputs": stat.ExpectedOutputs,
			"Reduced":         stat.Reduced,
			"LastUpdate":      stat.LastUpdate,
			"Parsed":          stat.Parsed,
		}).Errorf("Stuck file detected: '%v'", filename)
		monitor.completeFile(filename)
	}
}

// Run launches its own goroutine. It will proceed to monitor inputs and
// emit outputs as designed, while printing out a summary of the state of
// the process at a regular interval.
func (monitor *Monitor) Run() {
	go func() {
		defer CatchFatalError(monitor.logger)()
		monitor.status.LastUpdate = monitor.clock.Now()
		ticker := monitor.clock.After(MonitorLogInterval)
		for {
			// Only offer a completed work item when there is one to hand over
			var completedOutput chan<- string
			next := ""
			if len(monitor.pending) > 0 {
				completedOutput = monitor.completedWorkItemsOutput
				next = monitor.pending[0]
			} else if monitor.done() {
				completedOutput = monitor.completedWorkItemsOutput
			}
			select {
			case workItem := <-monitor.workItemReceivedInput:
				monitor.status.LastUpdate = monitor.clock.Now()
				monitor.receiveWorkItem(workItem)

			case parsed := <-monitor.filesParsedInput:
				stat := monitor.file(parsed.Filename)
				stat.Parsed = true
				stat.Records = parsed.Records
				monitor.status.FilesParsed++
				monitor.status.RecordsParsed += parsed.Records
				if parsed.Failed {
					monitor.status.FilesFailed++
				}
				monitor.checkFile(parsed.Filename)

			case processed := <-monitor.recordsProcessedInput:
				stat := monitor.file(processed.SourceFile)
				stat.Processed++
				stat.ExpectedOutputs += processed.Outputs
				monitor.status.RecordsProcessed++
				monitor.status.OutputsMapped += processed.Outputs
				if processed.Failed {
					monitor.status.RecordsFailed++
				}
				monitor.checkFile(processed.SourceFile)

			case filename := <-monitor.outputsReducedInput:
				monitor.file(filename).Reduced++
				monitor.status.OutputsReduced++
				monitor.checkFile(filename)

			case counter := <-monitor.counterInput:
				monitor.status.Counters[counter.Group+"/"+counter.Name] += counter.Amount

			case completedOutput <- next:
				monitor.status.LastUpdate = monitor.clock.Now()
				if next == "" {
					monitor.status.ProcessComplete = true
					monitor.statusWriter.WriteStatus(monitor.snapshot())
					return
				}
				monitor.pending = monitor.pending[1:]
				monitor.status.WorkItemsCompleted++

			case <-ticker:
				monitor.audit()
				monitor.statusWriter.WriteStatus(monitor.snapshot())
				ticker = monitor.clock.After(MonitorLogInterval)
			}
		}
	}()
}
