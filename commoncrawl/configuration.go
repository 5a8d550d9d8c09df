package commoncrawl

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration reads "30s" style strings from both YAML and JSON task files.
// Plain numbers are nanoseconds.
type Duration struct {
	time.Duration
}

func parseDuration(text string) (time.Duration, error) {
	if nanoseconds, err := strconv.ParseInt(text, 10, 64); err == nil {
		return time.Duration(nanoseconds), nil
	}
	return time.ParseDuration(text)
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var nanoseconds int64
		if err := json.Unmarshal(data, &nanoseconds); err != nil {
			return fmt.Errorf("invalid duration %v", string(data))
		}
		d.Duration = time.Duration(nanoseconds)
		return nil
	}
	duration, err := parseDuration(text)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// MarshalJSON writes the duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalYAML accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var text string
	if err := unmarshal(&text); err != nil {
		return err
	}
	duration, err := parseDuration(text)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

const (
	// PhaseMap indicates that the common crawl processing is in map phase
	PhaseMap = "map"
	// PhaseReduce indicates that the common crawl processing is in reduce phase
	PhaseReduce = "reduce"

	// DefaultArchiveBucket is the public bucket holding the ARC segment files
	DefaultArchiveBucket = "aws-publicdatasets"
	// DefaultCollectionRoot is the top level folder of the crawl inside the archive bucket
	DefaultCollectionRoot = "common-crawl"
	// DefaultAWSRegion is used when neither the configuration nor the environment names a region
	DefaultAWSRegion = "us-east-1"
	// DefaultQueueIdleReceives is how many empty long polls end an SQS run
	DefaultQueueIdleReceives = 3
)

// PluginConfiguration provides a way to customize the behavior of
// a plugin, output subfolder name, and number of shards.
type PluginConfiguration struct {
	PluginName   string            `yaml:"plugin_name" json:"PluginName"`     // Indicate which plugin to use
	ConfigData   map[string]string `yaml:"config_data" json:"ConfigData"`     // Custom configuration data for the plugin
	OutputSet    string            `yaml:"output_set" json:"OutputSet"`       // Name of output data set - subfolder will be named after this
	OutputShards int               `yaml:"output_shards" json:"OutputShards"` // Number of output shards for this plugin configuration
}

// Get returns a plugin option, or fallback when it is not set.
func (conf *PluginConfiguration) Get(key string, fallback string) string {
	if value, ok := conf.ConfigData[key]; ok && value != "" {
		return value
	}
	return fallback
}

// AWSConfiguration holds the credentials and endpoints used for S3 and SQS.
// Empty credentials fall back to the default AWS credential chain.
type AWSConfiguration struct {
	Region          string `yaml:"region" json:"Region"`
	AccessKeyID     string `yaml:"access_key_id" json:"AccessKeyID"`
	SecretAccessKey string `yaml:"secret_access_key" json:"SecretAccessKey"`
	S3Endpoint      string `yaml:"s3_endpoint" json:"S3Endpoint"`
	SQSEndpoint     string `yaml:"sqs_endpoint" json:"SQSEndpoint"`
}

// TaskConfiguration is the payload that instructs a common crawl
// task on how to run. It is read from a YAML file or an SQS message.
type TaskConfiguration struct {
	AWS AWSConfiguration `yaml:"aws" json:"AWS"`
	// How many goroutines parse downloaded input files
	DownloadPoolSize int `yaml:"download_pool_size" json:"DownloadPoolSize"`
	// How many goroutines map records. One keeps records in input order.
	ProcessorPoolSize int `yaml:"processor_pool_size" json:"ProcessorPoolSize"`
	// S3 bucket for input files. Necessary for pulling data from private buckets.
	InputBucket  string `yaml:"input_bucket" json:"InputBucket"`
	OutputBucket string `yaml:"output_bucket" json:"OutputBucket"`
	OutputFolder string `yaml:"output_folder" json:"OutputFolder"`
	Phase        string `yaml:"phase" json:"Phase"`
	// Index file listing input files, or a single input file / S3 prefix
	InputFilename string `yaml:"input_filename" json:"InputFilename"`
	// SQS queue that provides input files, used instead of InputFilename when set
	InputQueue string `yaml:"input_queue" json:"InputQueue"`
	// Empty receives in a row after which the queue is considered drained
	QueueIdleReceives int `yaml:"queue_idle_receives" json:"QueueIdleReceives"`
	// Treat InputFilename as one work item instead of an index of work items
	SingleWorkItem bool `yaml:"single_work_item" json:"SingleWorkItem"`
	// Local file listing work items already saved by earlier runs
	CheckpointFile string `yaml:"checkpoint_file" json:"CheckpointFile"`
	InputHost      string `yaml:"input_host" json:"InputHost"`     // Used to download input files through http
	DatasetHost    string `yaml:"dataset_host" json:"DatasetHost"` // Used to download archive slices through http
	// Where ARC segments are read from
	ArchiveBucket  string `yaml:"archive_bucket" json:"ArchiveBucket"`
	CollectionRoot string `yaml:"collection_root" json:"CollectionRoot"`
	// Local copy of the archive bucket. When set, slices are read from disk.
	ArchiveDirectory string `yaml:"archive_directory" json:"ArchiveDirectory"`
	// Fetch segment slices over http from DatasetHost instead of the S3 API
	ArchiveOverHTTP bool `yaml:"archive_over_http" json:"ArchiveOverHTTP"`
	// Upper bound for one slice fetch, e.g. "30s". Zero means no timeout.
	FetchTimeout Duration `yaml:"fetch_timeout" json:"FetchTimeout"`
	// Abort the task on the first record that fails to map instead of skipping it
	FailOnRecordError    bool                   `yaml:"fail_on_record_error" json:"FailOnRecordError"`
	LocalOutput          bool                   `yaml:"local_output" json:"LocalOutput"`
	PluginConfigurations []*PluginConfiguration `yaml:"plugins" json:"PluginConfigurations"`
}

// LoadTaskConfiguration reads a YAML task file, applies environment overrides
// and fills in defaults.
func LoadTaskConfiguration(path string) (*TaskConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task configuration %s: %w", path, err)
	}
	conf := &TaskConfiguration{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parsing task configuration %s: %w", path, err)
	}
	conf.ApplyEnvironment()
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ApplyEnvironment overrides AWS settings with the standard environment variables.
func (conf *TaskConfiguration) ApplyEnvironment() {
	overrides := map[string]*string{
		"AWS_REGION":            &conf.AWS.Region,
		"AWS_ACCESS_KEY_ID":     &conf.AWS.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &conf.AWS.SecretAccessKey,
		"S3_ENDPOINT":           &conf.AWS.S3Endpoint,
		"SQS_ENDPOINT":          &conf.AWS.SQSEndpoint,
	}
	for name, field := range overrides {
		if value := os.Getenv(name); value != "" {
			*field = value
		}
	}
}

// ApplyDefaults fills in every optional setting that was left empty.
func (conf *TaskConfiguration) ApplyDefaults() {
	if conf.Phase == "" {
		conf.Phase = PhaseMap
	}
	if conf.DownloadPoolSize < 1 {
		conf.DownloadPoolSize = 1
	}
	if conf.ProcessorPoolSize < 1 {
		conf.ProcessorPoolSize = 1
	}
	if conf.AWS.Region == "" {
		conf.AWS.Region = DefaultAWSRegion
	}
	if conf.ArchiveBucket == "" {
		conf.ArchiveBucket = DefaultArchiveBucket
	}
	if conf.CollectionRoot == "" {
		conf.CollectionRoot = DefaultCollectionRoot
	}
	if conf.QueueIdleReceives < 1 {
		conf.QueueIdleReceives = DefaultQueueIdleReceives
	}
	if conf.CheckpointFile == "" {
		conf.CheckpointFile = CompletedFilenamesPath
	}
	if conf.OutputFolder == "" {
		conf.OutputFolder = "output"
	}
	for _, pluginConfiguration := range conf.PluginConfigurations {
		// If OutputSet is not configured, default to the plugin name
		if pluginConfiguration.OutputSet == "" {
			pluginConfiguration.OutputSet = pluginConfiguration.PluginName
		}
		if pluginConfiguration.OutputShards < 1 {
			pluginConfiguration.OutputShards = 1
		}
	}
}

// Validate reports configuration that cannot run.
func (conf *TaskConfiguration) Validate() error {
	if conf.Phase != PhaseMap && conf.Phase != PhaseReduce {
		return fmt.Errorf("unknown phase '%v'", conf.Phase)
	}
	// Map phase requires at least one plugin,
	// reduce phase requires exactly one plugin
	if conf.Phase == PhaseMap && len(conf.PluginConfigurations) < 1 {
		return fmt.Errorf("at least one plugin is required for map phase")
	}
	if conf.Phase == PhaseReduce && len(conf.PluginConfigurations) != 1 {
		return fmt.Errorf("exactly one plugin is required for reduce phase")
	}
	if conf.InputFilename == "" && conf.InputQueue == "" {
		return fmt.Errorf("either input_filename or input_queue is required")
	}
	if !conf.LocalOutput && conf.OutputBucket == "" {
		return fmt.Errorf("output_bucket is required unless local_output is set")
	}
	return nil
}
