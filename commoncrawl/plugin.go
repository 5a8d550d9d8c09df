package commoncrawl

import "github.com/sirupsen/logrus"

// Plugin provides specific functionality that can
// utilize the commoncrawl processing framework
type Plugin interface {
	// NewInstance creates a configured plugin instance. It is called once per
	// task before any record is processed, so expensive resources such as
	// trained models are loaded here.
	NewInstance(config *PluginConfiguration, resources *TaskResources) (PluginInstance, error)
}

// TaskResources are the task-wide clients a plugin instance may use
type TaskResources struct {
	Phase        string             // PhaseMap or PhaseReduce
	SliceFetcher SliceFetcher       // Retrieves page captures from the archive
	Logger       logrus.FieldLogger // Log events
}

// PluginInstance is a configured instance of a plugin
// that provides specific functionality that can utilize
// the commoncrawl processing framework
type PluginInstance interface {
	// Mapper that will process map-phase records for this plugin
	Mapper() RecordMapper
	// Mapper that will process reduce-phase records for this plugin.
	// Reduce-phase records are the output lines produced
	// by the map-phase mapper.
	ReductionMapper() RecordMapper
	// Reducer to use for this plugin
	Reducer() OutputReducer
	// Filter for output before it is saved. May be nil.
	OutputFilter() OutputFilter
	// Close releases the resources acquired by NewInstance. It is called once
	// when the task shuts down.
	Close() error
}
