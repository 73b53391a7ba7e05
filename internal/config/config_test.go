package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"newsbench/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cnfg_gpt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, 1, cfg.Samples)
	assert.Equal(t, 20, cfg.MaxTokens)
	assert.Equal(t, 0.3, cfg.Temperature)
	assert.Equal(t, 120*time.Second, cfg.Retry.Delay)
	assert.Equal(t, filepath.Join("data", "news.json"), cfg.NewsPath())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_NEWS_FILE", "news_200.json")
	path := writeConfig(t, `
model: gpt-4o-mini
experiment: both
n_returns: 10
max_tokens: 1200
temperature: 0.9
data:
  news: ${TEST_NEWS_FILE}
dialogs_pre: intro
dialogs_post: [likert5_share]
retry:
  delay: 5s
providers:
  ollama:
    base_url: http://gpu-box:11434
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.Normalize()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, ExperimentBoth, cfg.Experiment)
	assert.Equal(t, 10, cfg.Samples)
	assert.Equal(t, "news_200.json", cfg.Data.News)
	assert.Equal(t, StringList{"intro"}, cfg.DialogsPre)
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay)
	assert.Equal(t, "http://gpu-box:11434", cfg.Providers.Ollama.BaseURL)
	assert.Equal(t, DefaultOllamaKeep, cfg.Providers.Ollama.KeepAlive, "unset fields keep defaults")
	assert.True(t, cfg.LikertScale, "likert post dialog switches Likert mode on")
	assert.True(t, cfg.UseAgreement())
	assert.Equal(t, path, cfg.Path)
}

func TestLoadWithoutExtension(t *testing.T) {
	path := writeConfig(t, "experiment: news_noimage\n")
	cfg, err := Load(path[:len(path)-len(".yaml")])
	require.NoError(t, err)
	assert.Equal(t, ExperimentNoImage, cfg.Experiment)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEWSBENCH_MODEL", "claude-3-haiku-20240307")
	t.Setenv("NEWSBENCH_SAMPLES", "4")
	t.Setenv("OLLAMA_HOST", "127.0.0.1:11500")

	cfg, err := Load(writeConfig(t, "model: gpt-4o\n"))
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Model)
	assert.Equal(t, 4, cfg.Samples)
	assert.Equal(t, "http://127.0.0.1:11500", cfg.Providers.Ollama.BaseURL)
}

func TestNormalize(t *testing.T) {
	off := false
	cfg := DefaultConfig()
	cfg.DialogsPre = StringList{"profile_young", "intro"}
	cfg.DialogsPost = StringList{"likert5"}
	cfg.Agreement = &off
	cfg.Normalize()

	assert.Equal(t, StringList{"p_young", "intro"}, cfg.DialogsPre)
	assert.True(t, cfg.LikertScale)
	assert.False(t, cfg.UseAgreement(), "an explicit agreement setting wins")

	check := DefaultConfig()
	check.Experiment = ExperimentCheckNews
	check.Samples = 8
	check.Normalize()
	assert.Equal(t, 1, check.Samples)
	assert.Equal(t, StringList{DefaultCheckDialog}, check.DialogsPre)
	assert.False(t, check.LikertScale)
	assert.False(t, check.UseAgreement())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Experiment = "everything"
	cfg.Model = "gpt-17"
	cfg.Samples = 0
	cfg.TopP = 1.5
	cfg.MultiDialogsPre = []DialogSlot{{Options: []string{"a"}}}
	cfg.MultiDemography = map[string][]string{"age": {"young"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidExperiment)
	assert.ErrorIs(t, err, models.ErrUnknownModel)
	assert.ErrorIs(t, err, ErrMultiConflict)
	assert.ErrorIs(t, err, ErrMultiSlots)
	assert.Contains(t, err.Error(), "n_returns")
	assert.Contains(t, err.Error(), "top_p")
}

func TestDialogSlotYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`multi_dialogs_pre: [intro, [p_a, p_b], tail]`), &cfg))

	want := []DialogSlot{
		{Options: []string{"intro"}},
		{Options: []string{"p_a", "p_b"}, Multi: true},
		{Options: []string{"tail"}},
	}
	if diff := cmp.Diff(want, cfg.MultiDialogsPre); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}

	out, err := yaml.Marshal(&cfg)
	require.NoError(t, err)
	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, cfg.MultiDialogsPre, back.MultiDialogsPre)

	assert.Error(t, yaml.Unmarshal([]byte(`multi_dialogs_pre: [{a: b}]`), &cfg))
}

func TestDialogVariants(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MultiDialogsPre = []DialogSlot{
		{Options: []string{"intro"}},
		{Multi: true},
	}

	variants, err := cfg.Variants(func() []string { return []string{"p_a", "p_b", "p_c"} })
	require.NoError(t, err)
	require.Len(t, variants, 3)
	assert.Equal(t, []string{"intro", "p_b"}, variants[1].Pre)
	assert.Equal(t, 2, variants[2].Index)
	assert.Equal(t, "intro,p_c", variants[2].Label())
}

func TestDemographyVariants(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DialogsPre = StringList{"intro"}
	cfg.MultiDemography = map[string][]string{
		"stance": {"left", "right"},
		"age":    {"young", "middle", "old"},
	}

	variants, err := cfg.Variants(nil)
	require.NoError(t, err)
	require.Len(t, variants, 6)
	assert.Equal(t, map[string]string{"age": "young", "stance": "left"}, variants[0].Persona)
	assert.Equal(t, map[string]string{"age": "young", "stance": "right"}, variants[1].Persona)
	assert.Equal(t, map[string]string{"age": "old", "stance": "right"}, variants[5].Persona)
	assert.Equal(t, "age=old,stance=right", variants[5].Label())
	for _, v := range variants {
		assert.Equal(t, []string{"intro"}, v.Pre)
	}
}

func TestSingleVariant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DialogsPre = StringList{"intro"}
	cfg.Demographics = map[string]string{"age": "old"}

	variants, err := cfg.Variants(nil)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, []string{"intro"}, variants[0].Pre)
	assert.Equal(t, "old", variants[0].Persona["age"])
	assert.False(t, cfg.Multi())
}

func TestDumpMasksKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-secret-value"
	out := cfg.Dump()
	assert.NotContains(t, out, "sk-secret-value")
	assert.Contains(t, out, "****")
	assert.Equal(t, "sk-secret-value", cfg.Providers.OpenAI.APIKey, "dump must not alter the config")
}
