package commoncrawl

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	// BufferSize is the capacity of channels that require a buffer.
	BufferSize = 100
)

// A ControllerConfiguration contains the necessary dependencies that a Controller
// will need to function. Some dependencies are optional and have default values.
type ControllerConfiguration struct {
	TaskConfiguration *TaskConfiguration // Required - Settings for the task
	Plugins           map[string]Plugin  // Required - Plugins that provide mappers and reducers for processing
	InputSource       InputSource        // Required - Produces work items to be processed
	EndOfProcess      chan<- bool        // Required - Receives true when every work item was saved, false otherwise
	RecordReader      RecordReader       // Required - Reads an open file into a stream of records
	OutputFileWriter  OutputFileWriter   // Required - Writer to save data to output files

	S3Client            s3iface.S3API       // Optional - Client for input files and archive slices in S3
	FileDownloadFactory FileDownloadFactory // Optional - Defaults to one chosen by configuration
	SliceFetcher        SliceFetcher        // Optional - Defaults to one chosen by configuration
	StatusWriter        StatusWriter        // Optional - Sends status notifications.
	HTTPClient          HTTPClient          // Optional - Client to make http calls. Defaults to http.DefaultClient
	Clock               clockwork.Clock     // Optional - Pauses and checks the time. Defaults to an instance of RealClock
	Logger              logrus.FieldLogger  // Optional - passes in a logger that will be used by all components
}

// The Controller bootstraps the common crawl process
type Controller struct {
	taskConfiguration *TaskConfiguration // Settings for the task
	inputSource       InputSource        // Produces work items to be processed
	endOfProcess      chan<- bool        // Output channel for end of process signal
	recordReader      RecordReader       // Reads an open file into a stream of records

	pluginInstances []PluginInstance         // Created once per task, closed at the end of the process
	recordMappers   []RecordMapper           // List of record mappers to convert records to OutputItems
	outputReducers  map[string]OutputReducer // Map of output set to reducer. Reducers combine OutputItems
	outputFilter    OutputFilter             // Only supported in reduce mode

	outputWriters       map[string]*OutputWriter // Map of output set to writer to save data to output files
	fileDownloadFactory FileDownloadFactory      // Creates input file downloads
	clock               clockwork.Clock          // Used for pausing and checking the time
	statusWriter        StatusWriter             // Sends status notifications
	logger              logrus.FieldLogger       // Log system events and errors
}

// NewController returns a new instance of `Controller`. Every configured
// plugin is instantiated here, once for the whole task.
//
// * conf - Contains all necessary dependencies for the process to function.
func NewController(conf *ControllerConfiguration) (*Controller, error) {
	controller := new(Controller)
	controller.taskConfiguration = conf.TaskConfiguration
	controller.endOfProcess = conf.EndOfProcess
	controller.recordReader = conf.RecordReader
	controller.inputSource = conf.InputSource
	controller.logger = conf.Logger
	if controller.logger == nil {
		controller.logger = logrus.New()
	}

	// Assign values to optional dependencies
	httpClient := conf.HTTPClient
	if httpClient == nil {
		controller.logger.Debug("Using default http client")
		httpClient = http.DefaultClient
	}
	controller.clock = conf.Clock
	if controller.clock == nil {
		controller.logger.Debug("Using real clock")
		controller.clock = clockwork.NewRealClock()
	}
	controller.statusWriter = conf.StatusWriter
	if controller.statusWriter == nil {
		controller.logger.Debug("Using logging status writer")
		controller.statusWriter = NewLogStatusWriter(controller.logger)
	}
	controller.fileDownloadFactory = conf.FileDownloadFactory
	if controller.fileDownloadFactory == nil {
		controller.fileDownloadFactory = NewFileDownloadFactory(conf.TaskConfiguration, conf.S3Client, controller.clock, httpClient, controller.logger)
	}
	sliceFetcher := conf.SliceFetcher
	if sliceFetcher == nil {
		sliceFetcher = NewSliceFetcher(conf.TaskConfiguration, conf.S3Client, httpClient, controller.logger)
	}
	sliceFetcher = WithFetchTimeout(sliceFetcher, conf.TaskConfiguration.FetchTimeout.Duration)

	if err := conf.TaskConfiguration.Validate(); err != nil {
		return nil, err
	}
	resources := &TaskResources{
		Phase:        conf.TaskConfiguration.Phase,
		SliceFetcher: sliceFetcher,
		Logger:       controller.logger,
	}
	controller.outputReducers = make(map[string]OutputReducer, len(conf.Plugins))
	controller.outputWriters = make(map[string]*OutputWriter, len(conf.Plugins))
	for _, pluginConfiguration := range conf.TaskConfiguration.PluginConfigurations {
		plugin, ok := conf.Plugins[pluginConfiguration.PluginName]
		if !ok {
			controller.closePlugins()
			return nil, fmt.Errorf("plugin not found: %v", pluginConfiguration.PluginName)
		}
		pluginInstance, err := plugin.NewInstance(pluginConfiguration, resources)
		if err != nil {
			controller.closePlugins()
			return nil, fmt.Errorf("creating plugin %v: %w", pluginConfiguration.PluginName, err)
		}
		controller.pluginInstances = append(controller.pluginInstances, pluginInstance)
		if conf.TaskConfiguration.Phase == PhaseMap {
			controller.recordMappers = append(controller.recordMappers, pluginInstance.Mapper())
		} else {
			controller.recordMappers = append(controller.recordMappers, pluginInstance.ReductionMapper())
			// Reduce phase has exactly one plugin, hence one filter
			controller.outputFilter = pluginInstance.OutputFilter()
		}
		controller.outputReducers[pluginConfiguration.OutputSet] = pluginInstance.Reducer()
		controller.outputWriters[pluginConfiguration.OutputSet] = NewOutputWriter(
			conf.OutputFileWriter,
			conf.TaskConfiguration.OutputFolder,
			controller.logger,
			pluginConfiguration.OutputShards,
		)
	}

	controller.logger = controller.logger.WithField("component", "controller")
	return controller, nil
}

func (controller *Controller) closePlugins() {
	for _, pluginInstance := range controller.pluginInstances {
		if err := pluginInstance.Close(); err != nil {
			controller.logger.Errorf("Error closing plugin: '%v'", err.Error())
		}
	}
	controller.pluginInstances = nil
	controller.recordMappers = nil
}

func (controller *Controller) filterOutputData(data []OutputItem) []OutputItem {
	if controller.outputFilter == nil {
		return data
	}
	filtered := make([]OutputItem, 0, len(data))
	for i := 0; i < len(data); i++ {
		if controller.outputFilter.TestOutputItem(data[i]) {
			filtered = append(filtered, data[i])
		}
	}
	return filtered
}

// saveWorkItem flushes the output store and writes every output set
func (controller *Controller) saveWorkItem(workItemID string, flushSignal chan<- FlushRequest) error {
	flushRequest := make(chan map[string]map[string]OutputItem)
	flushSignal <- FlushRequest{
		Callback:   flushRequest,
		WorkItemID: workItemID,
	}
	data := <-flushRequest
	if len(data) == 0 {
		controller.logger.Infof("Work item '%v' had no data", workItemID)
		return nil
	}
	for outputSet, dataItems := range data {
		outputItems := controller.filterOutputData(outputMapToSlice(dataItems))
		controller.logger.Infof("Saving %v output items of output set '%v' for work item '%v'", len(outputItems), outputSet, workItemID)
		writer, ok := controller.outputWriters[outputSet]
		if !ok {
			return fmt.Errorf("no writer for output set '%v'", outputSet)
		}
		if err := writer.WriteOutputData(outputSet, outputItems); err != nil {
			return err
		}
	}
	return nil
}

// Run launches its own goroutine. It will continue running
// until every work item of the input has been saved, after which it will
// emit an endOfProcess signal and terminate.
func (controller *Controller) Run(ctx context.Context) {
	go func() {
		defer CatchFatalError(controller.logger)()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		conf := controller.taskConfiguration
		started := controller.clock.Now()
		controller.logger.Infof(
			"Process starting at %v; phase %v, %v parsers, %v processors",
			started, conf.Phase, conf.DownloadPoolSize, conf.ProcessorPoolSize)
		// Create channels for communication between components
		fileDownloadsChannel := make(chan FileDownload)
		parserRecordOutputChannel := make(chan ParsedRecord, BufferSize)
		dataReduceChannel := make(chan RecordOutput, BufferSize*conf.ProcessorPoolSize)
		flushSignalChannel := make(chan FlushRequest)
		workItemReceivedListener := make(chan *WorkItem, BufferSize)
		fileParsedListener := make(chan FileParsed, BufferSize)
		recordProcessedListener := make(chan RecordProcessed, BufferSize)
		outputsReducedListener := make(chan string, BufferSize)
		// Unbuffered so that counters of a record reach the monitor before the record does
		counterListener := make(chan CounterIncrement)
		completedWorkItems := make(chan string)

		// Create pool of Parsers
		for i := 0; i < conf.DownloadPoolSize; i++ {
			NewParser(
				controller.recordReader,
				fileDownloadsChannel,
				parserRecordOutputChannel,
				fileParsedListener,
				controller.logger).Run()
		}

		NewDownloader(
			controller.fileDownloadFactory,
			controller.clock,
			controller.inputSource.WorkItemsOutput(),
			workItemReceivedListener,
			fileDownloadsChannel,
			controller.logger).Run()

		// Create pool of processors
		for i := 0; i < conf.ProcessorPoolSize; i++ {
			NewRecordProcessor(
				controller.recordMappers,
				parserRecordOutputChannel,
				dataReduceChannel,
				recordProcessedListener,
				counterListener,
				conf.FailOnRecordError,
				controller.logger).Run(ctx)
		}

		NewOutputStore(
			controller.outputReducers,
			dataReduceChannel,
			flushSignalChannel,
			outputsReducedListener,
			controller.logger).Run(ctx)

		NewMonitor(
			controller.statusWriter,
			controller.clock,
			workItemReceivedListener,
			fileParsedListener,
			recordProcessedListener,
			outputsReducedListener,
			counterListener,
			completedWorkItems,
			controller.logger).Run()

		controller.inputSource.Run()
		failures := 0
		for workItemID := range completedWorkItems {
			if workItemID == "" {
				break
			}
			if err := controller.saveWorkItem(workItemID, flushSignalChannel); err != nil {
				// Left unmarked so that a later run picks the work item up again
				controller.logger.Errorf("Error saving work item '%v': '%v'", workItemID, err.Error())
				failures++
				continue
			}
			controller.inputSource.CompletedWorkItemsInput() <- workItemID
		}
		controller.inputSource.CompletedWorkItemsInput() <- ""
		controller.closePlugins()
		controller.logger.Infof("Process complete. Time elapsed: %v", controller.clock.Since(started).Round(time.Millisecond))
		controller.endOfProcess <- failures == 0
	}()
}
