package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
data:
  path: iris.csv
  features: [a, b, c, d]
  labels: [species]
  classes: 3
learner:
  kind: adam
  learning_rate: 0.01
  max_samples: 6000
training:
  minibatch_size: 16
  checkpoint_dir: ckpt
`

func TestLoad_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Data.Format)
	assert.Equal(t, "cross_entropy", cfg.Model.Loss)
	assert.Equal(t, "constant", cfg.Learner.Schedule)
	assert.Equal(t, 100, cfg.Training.CheckpointEvery)
	assert.Equal(t, 3, cfg.Training.Keep)
	assert.Equal(t, 50, cfg.Training.LogEvery)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, int64(6000), cfg.Learner.MaxSamples)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse(strings.NewReader("data:\n  pth: x\n"))
	require.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	cfg.ApplyOverrides(Overrides{MinibatchSize: 64, LearningRate: 0.5, Device: "gpu:0"})
	assert.Equal(t, 64, cfg.Training.MinibatchSize)
	assert.Equal(t, 0.5, cfg.Learner.LearningRate)
	assert.Equal(t, "gpu:0", cfg.Device)
	assert.Equal(t, "iris.csv", cfg.Data.Path, "zero overrides keep values")
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"no path":          "data: {features: [a], labels: [b], classes: 2}\nlearner: {learning_rate: 1}\ntraining: {minibatch_size: 1}\n",
		"bad learner":      "data: {path: x, features: [a], labels: [b], classes: 2}\nlearner: {kind: rmsprop, learning_rate: 1}\ntraining: {minibatch_size: 1}\n",
		"no rate":          "data: {path: x, features: [a], labels: [b], classes: 2}\ntraining: {minibatch_size: 1}\n",
		"cosine no period": "data: {path: x, features: [a], labels: [b], classes: 2}\nlearner: {learning_rate: 1, schedule: cosine}\ntraining: {minibatch_size: 1}\n",
		"text no vocab":    "data: {format: text, path: x}\nlearner: {learning_rate: 1}\ntraining: {minibatch_size: 1}\n",
		"no minibatch":     "data: {path: x, features: [a], labels: [b], classes: 2}\nlearner: {learning_rate: 1}\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse(strings.NewReader(yml))
			require.NoError(t, err)
			require.Error(t, cfg.Validate())
		})
	}
}
