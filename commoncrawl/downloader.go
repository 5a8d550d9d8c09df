package commoncrawl

import (
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	// PublicDatasetsPrefix is the default host for input files fetched over http
	PublicDatasetsPrefix = "https://commoncrawl.s3.amazonaws.com/"
	// DownloadDelay is the interval between each input file download
	// so that records flow out of the system without huge bursts.
	DownloadDelay = time.Millisecond
	// DownloadRetries is how many times an input file is retried before giving up
	DownloadRetries = 5
)

// WithRetries will continue to attempt an operation
// up to the specified number of retries with an exponential
// backoff. If the operation is still unsuccessful
// after all retries are exhausted (operation returns an error),
// that error is returned.
func WithRetries(clock clockwork.Clock, retries int, operation func() error) error {
	err := operation()
	backoff := time.Second * 2
	for err != nil && retries > 0 {
		clock.Sleep(backoff)
		retries--
		backoff *= 2
		err = operation()
	}
	return err
}

// HTTPClient is a stripped-down interface for fetching files over http. `http.DefaultClient` satisfies this interface.
type HTTPClient interface {
	// Do sends the request and returns the response
	Do(req *http.Request) (*http.Response, error)
}

// Downloader turns work items into a stream of input file downloads
type Downloader struct {
	fileDownloadFactory      FileDownloadFactory // Creates FileDownload instances
	clock                    clockwork.Clock     // Paces the downloads
	workItemsInput           <-chan *WorkItem    // Input channel of work items
	workItemReceivedListener chan<- *WorkItem    // Output listener for work items, nil once input is exhausted
	downloadOutput           chan<- FileDownload // Output channel of `FileDownload` instances
	logger                   logrus.FieldLogger  // Log events
}

// NewDownloader returns a new instance of Downloader
//
// * fileDownloadFactory - Creates FileDownload instances
// * clock - Paces the downloads
// * workItemsInput - Input channel of work items, a nil item marks the end of input
// * workItemReceivedListener - Notified for each work item before its files are sent, and with nil at the end of input
// * downloadOutput - Output channel of `FileDownload` instances
// * logger - Log events
func NewDownloader(
	fileDownloadFactory FileDownloadFactory,
	clock clockwork.Clock,
	workItemsInput <-chan *WorkItem,
	workItemReceivedListener chan<- *WorkItem,
	downloadOutput chan<- FileDownload,
	logger logrus.FieldLogger,
) *Downloader {
	downloader := new(Downloader)
	downloader.fileDownloadFactory = fileDownloadFactory
	downloader.clock = clock
	downloader.workItemsInput = workItemsInput
	downloader.workItemReceivedListener = workItemReceivedListener
	downloader.downloadOutput = downloadOutput
	downloader.logger = logger.WithField("component", "downloader")
	return downloader
}

// Run launches its own goroutine. It will begin pulling work items from workItemsInput
// and emitting one FileDownload per source file to downloadOutput.
func (downloader *Downloader) Run() {
	go func() {
		defer CatchFatalError(downloader.logger)()
		for workItem := range downloader.workItemsInput {
			if workItem == nil {
				break
			}
			downloader.workItemReceivedListener <- workItem
			for _, filename := range workItem.SourceFiles {
				filename = strings.TrimSpace(filename)
				downloader.downloadOutput <- downloader.fileDownloadFactory.NewFileDownload(workItem.WorkItemID, filename)
				downloader.clock.Sleep(DownloadDelay)
			}
		}
		downloader.logger.Info("Downloader shutting down")
		downloader.workItemReceivedListener <- nil
	}()
}
