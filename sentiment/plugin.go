package sentiment

import (
	"fmt"
	"strconv"

	"github.com/ssalevan/cc-yt-sentiment/commoncrawl"
)

// PluginName is the name tasks refer to this plugin by
const PluginName = "ytsentiment"

// Plugin options read from PluginConfiguration.ConfigData
const (
	ModelPathOption       = "model_path"
	FeatureMapPathOption  = "feature_map_path"
	CommentSelectorOption = "comment_selector"
	ScorePrecisionOption  = "score_precision"
	LocaleOption          = "locale"
	DropNoCommentsOption  = "drop_no_comments"
)

// Plugin implements commoncrawl.Plugin for YouTube comment sentiment
type Plugin struct {
	// LoadClassifier overrides how the model is loaded, for tests
	LoadClassifier func(path string) (Classifier, error)
}

// NewPlugin returns a Plugin loading naive Bayes model artifacts
func NewPlugin() *Plugin {
	return &Plugin{}
}

type classifierVocabulary interface {
	Vocabulary() []string
}

func (plugin *Plugin) loadClassifier(path string) (Classifier, error) {
	if plugin.LoadClassifier != nil {
		return plugin.LoadClassifier(path)
	}
	return LoadNaiveBayes(path)
}

// NewInstance loads the model and vocabulary once for the task
func (plugin *Plugin) NewInstance(config *commoncrawl.PluginConfiguration, resources *commoncrawl.TaskResources) (commoncrawl.PluginInstance, error) {
	instance := &pluginInstance{
		outputSet: config.OutputSet,
		reducer:   new(GroupReducer),
	}
	if dropped, _ := strconv.ParseBool(config.Get(DropNoCommentsOption, "false")); dropped {
		instance.filter = new(NoCommentsFilter)
	}
	precision, err := strconv.Atoi(config.Get(ScorePrecisionOption, "-1"))
	if err != nil {
		return nil, fmt.Errorf("invalid %v: %w", ScorePrecisionOption, err)
	}
	modelPath := config.Get(ModelPathOption, "")
	if resources.Phase == commoncrawl.PhaseReduce {
		return instance, nil
	}
	if modelPath == "" {
		return nil, fmt.Errorf("%w: %v is required", ErrModel, ModelPathOption)
	}
	classifier, err := plugin.loadClassifier(modelPath)
	if err != nil {
		return nil, err
	}
	var vocabulary []string
	if featureMapPath := config.Get(FeatureMapPathOption, ""); featureMapPath != "" {
		vocabulary, err = LoadFeatureMap(featureMapPath)
		if err != nil {
			return nil, err
		}
	} else if withVocabulary, ok := classifier.(classifierVocabulary); ok {
		vocabulary = withVocabulary.Vocabulary()
	}
	extractor, err := NewFeatureExtractor(vocabulary, config.Get(LocaleOption, ""))
	if err != nil {
		return nil, err
	}
	resources.Logger.WithField("component", PluginName).Infof(
		"Loaded model '%v' with %v vocabulary words", modelPath, len(extractor.Vocabulary()))
	instance.mapper = NewPageMapper(
		config.OutputSet,
		resources.SliceFetcher,
		NewCommentParser(config.Get(CommentSelectorOption, DefaultCommentSelector)),
		NewScorer(extractor, classifier),
		precision,
	)
	return instance, nil
}

type pluginInstance struct {
	outputSet string
	mapper    *PageMapper
	reducer   *GroupReducer
	filter    commoncrawl.OutputFilter
}

func (instance *pluginInstance) Mapper() commoncrawl.RecordMapper {
	return instance.mapper
}

func (instance *pluginInstance) ReductionMapper() commoncrawl.RecordMapper {
	return NewGroupReductionMapper(instance.outputSet)
}

func (instance *pluginInstance) Reducer() commoncrawl.OutputReducer {
	return instance.reducer
}

func (instance *pluginInstance) OutputFilter() commoncrawl.OutputFilter {
	return instance.filter
}

// Close drops the instance's mapper. The controller releases its own
// references to the mapper once every instance is closed.
func (instance *pluginInstance) Close() error {
	instance.mapper = nil
	return nil
}
