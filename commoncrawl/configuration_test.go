package commoncrawl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTaskYAML = `
phase: map
input_filename: index.txt
local_output: true
fetch_timeout: 30s
plugins:
  - plugin_name: ytsentiment
    output_shards: 4
    config_data:
      model_path: model.json
`

func writeTaskFile(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "task.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadTaskConfiguration(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	conf, err := LoadTaskConfiguration(writeTaskFile(t, testTaskYAML))
	require.NoError(t, err)
	require.Equal(t, PhaseMap, conf.Phase)
	require.Equal(t, "index.txt", conf.InputFilename)
	require.True(t, conf.LocalOutput)
	require.Equal(t, time.Second*30, conf.FetchTimeout.Duration)
	require.Len(t, conf.PluginConfigurations, 1)

	plugin := conf.PluginConfigurations[0]
	require.Equal(t, "ytsentiment", plugin.OutputSet)
	require.Equal(t, 4, plugin.OutputShards)
	require.Equal(t, "model.json", plugin.Get("model_path", ""))
	require.Equal(t, "fallback", plugin.Get("locale", "fallback"))

	// defaults
	require.Equal(t, 1, conf.DownloadPoolSize)
	require.Equal(t, 1, conf.ProcessorPoolSize)
	require.Equal(t, DefaultArchiveBucket, conf.ArchiveBucket)
	require.Equal(t, DefaultCollectionRoot, conf.CollectionRoot)
	require.Equal(t, DefaultAWSRegion, conf.AWS.Region)
	require.Equal(t, DefaultQueueIdleReceives, conf.QueueIdleReceives)
	require.Equal(t, CompletedFilenamesPath, conf.CheckpointFile)
	require.Equal(t, "output", conf.OutputFolder)
}

func TestEnvironmentOverridesAWS(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	conf, err := LoadTaskConfiguration(writeTaskFile(t, testTaskYAML+"aws:\n  region: us-west-2\n"))
	require.NoError(t, err)
	require.Equal(t, "eu-west-1", conf.AWS.Region)
	require.Equal(t, "http://localhost:9000", conf.AWS.S3Endpoint)
}

func TestLoadTaskConfigurationErrors(t *testing.T) {
	_, err := LoadTaskConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadTaskConfiguration(writeTaskFile(t, "plugins: [unclosed"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *TaskConfiguration {
		conf := &TaskConfiguration{
			InputFilename:        "index.txt",
			OutputBucket:         "output-bucket",
			PluginConfigurations: []*PluginConfiguration{{PluginName: "ytsentiment"}},
		}
		conf.ApplyDefaults()
		return conf
	}
	require.NoError(t, valid().Validate())

	conf := valid()
	conf.Phase = "shuffle"
	require.Error(t, conf.Validate())

	conf = valid()
	conf.PluginConfigurations = nil
	require.Error(t, conf.Validate())

	conf = valid()
	conf.Phase = PhaseReduce
	conf.PluginConfigurations = append(conf.PluginConfigurations, &PluginConfiguration{PluginName: "other"})
	require.Error(t, conf.Validate())

	conf = valid()
	conf.InputFilename = ""
	require.Error(t, conf.Validate())
	conf.InputQueue = "work-items"
	require.NoError(t, conf.Validate())

	conf = valid()
	conf.OutputBucket = ""
	require.Error(t, conf.Validate())
	conf.LocalOutput = true
	require.NoError(t, conf.Validate())
}

// Task queue payloads are JSON and take the same duration strings as task files
func TestDurationJSON(t *testing.T) {
	conf := &TaskConfiguration{}
	require.NoError(t, json.Unmarshal([]byte(`{"FetchTimeout": "45s"}`), conf))
	require.Equal(t, time.Second*45, conf.FetchTimeout.Duration)

	require.NoError(t, json.Unmarshal([]byte(`{"FetchTimeout": 1500000000}`), conf))
	require.Equal(t, time.Millisecond*1500, conf.FetchTimeout.Duration)

	require.Error(t, json.Unmarshal([]byte(`{"FetchTimeout": "soon"}`), conf))
	require.Error(t, json.Unmarshal([]byte(`{"FetchTimeout": true}`), conf))

	data, err := json.Marshal(Duration{time.Minute})
	require.NoError(t, err)
	require.Equal(t, `"1m0s"`, string(data))
}
