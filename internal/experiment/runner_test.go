package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbench/internal/checkpoint"
	"newsbench/internal/classify"
	"newsbench/internal/client"
	"newsbench/internal/config"
	"newsbench/internal/corpus"
	"newsbench/internal/logging"
	"newsbench/internal/models"
	"newsbench/internal/prompt"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

// fakeCompleter answers with fixed replies and fails on demand.
type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	failOn  string // fail requests whose prompt contains this text
	calls   int
	images  int
}

func (f *fakeCompleter) Complete(ctx context.Context, req *prompt.Request, n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(req.PromptText(), f.failOn) {
		return nil, client.ErrProviderFailed
	}
	f.calls++
	for _, t := range req.Turns {
		for _, p := range t.Parts {
			if p.Kind == prompt.PartImage {
				f.images++
			}
		}
	}
	return client.NewDryRun(f.replies).Complete(ctx, req, n)
}

type fixture struct {
	cfg      *config.Config
	composer *prompt.Composer
	news     *corpus.News
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	news, err := corpus.NewNews([]corpus.Item{
		{ID: "t001", Content: "claims X is true", Source: "Reuters", Image: "t001.jpg"},
		{ID: "f002", Content: "claims Y is false", Image: "f002.jpg"},
		{ID: "t003", Content: "claims Z", Image: "t003.jpg"},
		{ID: "f004", Content: "claims W", Image: "f004.jpg"},
	})
	require.NoError(t, err)

	imgs := filepath.Join(dir, "imgs")
	require.NoError(t, os.MkdirAll(imgs, 0o755))
	for _, name := range []string{"t001.jpg", "f002.jpg", "t003.jpg", "f004.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(imgs, name), []byte("jpeg"), 0o644))
	}

	cfg := config.DefaultConfig()
	cfg.Model = "gpt-4o"
	cfg.Experiment = config.ExperimentNoImage
	cfg.Samples = 3
	cfg.DialogsPre = config.StringList{"intro"}
	cfg.DialogsPost = config.StringList{"yesno"}
	cfg.Output.Checkpoint = filepath.Join(dir, ".back.json")
	cfg.Normalize()

	return &fixture{
		cfg:  cfg,
		news: news,
		composer: &prompt.Composer{
			News: news,
			Dialogs: corpus.NewDialogs([]corpus.Dialog{
				{ID: "intro", Content: "Consider this post.{content_dems}"},
				{ID: "yesno", Content: "Would you share it? Reply <yes> or <no>."},
				{ID: "likert_post", Content: "Rate from L1 to L5."},
				{ID: "check_text", Content: "Summarize the claim."},
				{ID: "content_dems", Content: " You are {age}."},
			}),
			Whitelist: corpus.Whitelist{"age": {"young", "old"}},
			Images:    corpus.NewImages(imgs),
		},
	}
}

func (f *fixture) runner(t *testing.T, c Completer) *Runner {
	t.Helper()
	m, err := models.Lookup(f.cfg.Model)
	require.NoError(t, err)
	return NewRunner(f.cfg, m, f.composer, c)
}

func (f *fixture) runAll(t *testing.T, c Completer, items []string) ([]*Outcome, error) {
	t.Helper()
	variants, err := f.cfg.Variants(nil)
	require.NoError(t, err)
	var outs []*Outcome
	err = f.runner(t, c).RunAll(context.Background(), variants, items, func(o *Outcome) error {
		outs = append(outs, o)
		return nil
	})
	return outs, err
}

func TestBooleanScenario(t *testing.T) {
	f := newFixture(t)
	fake := &fakeCompleter{replies: []string{"<decision>yes", "<decision>yes", "<decision>no"}}

	outs, err := f.runAll(t, fake, []string{"t001"})
	require.NoError(t, err)
	require.Len(t, outs, 1)

	snap := outs[0].Snapshot
	require.Nil(t, snap.WithImage)
	require.Equal(t, []string{"t001"}, snap.NoImage.Done)
	yes, no, unk := snap.NoImage.Scores[0].Fractions()
	assert.InDelta(t, 2.0/3, yes, 1e-9)
	assert.InDelta(t, 1.0/3, no, 1e-9)
	assert.Zero(t, unk)
	assert.True(t, snap.Finished)
	assert.Equal(t, 1, fake.calls)
	assert.Zero(t, fake.images)

	saved, err := checkpoint.NewStore(f.cfg.Output.Checkpoint).Load()
	require.NoError(t, err)
	assert.Equal(t, snap.NoImage.Done, saved.NoImage.Done)
}

func TestLikertScenario(t *testing.T) {
	f := newFixture(t)
	f.cfg.Samples = 4
	f.cfg.DialogsPost = config.StringList{"likert_post"}
	f.cfg.Agreement = nil
	f.cfg.Normalize()
	require.True(t, f.cfg.LikertScale)

	fake := &fakeCompleter{replies: []string{"L1", "[L-3]", "L5", "no label here"}}
	outs, err := f.runAll(t, fake, []string{"f002"})
	require.NoError(t, err)

	score := outs[0].Snapshot.NoImage.Scores[0]
	assert.Equal(t, classify.KindLikert, score.Kind)
	assert.Equal(t, []float64{0.25, 0.25, 0, 0.25, 0, 0.25, 0}, score.Bins)
	agr, ok := score.Agreement()
	assert.True(t, ok)
	assert.Zero(t, agr)
}

func TestBothPasses(t *testing.T) {
	f := newFixture(t)
	f.cfg.Experiment = config.ExperimentBoth
	fake := &fakeCompleter{replies: []string{"<yes>"}}

	var updates []ProgressUpdate
	r := f.runner(t, fake)
	r.SetProgressHandler(func(u ProgressUpdate) { updates = append(updates, u) })
	variants, err := f.cfg.Variants(nil)
	require.NoError(t, err)

	var out *Outcome
	require.NoError(t, r.RunAll(context.Background(), variants, []string{"t001", "f002"}, func(o *Outcome) error {
		out = o
		return nil
	}))

	snap := out.Snapshot
	assert.Equal(t, []string{"t001", "f002"}, snap.NoImage.Done)
	assert.Equal(t, []string{"t001", "f002"}, snap.WithImage.Done)
	assert.Equal(t, []string{"", ""}, snap.NoImage.ImageNames)
	assert.Equal(t, []string{"t001.jpg", "f002.jpg"}, snap.WithImage.ImageNames)
	assert.Equal(t, 4, fake.calls)
	assert.Equal(t, 2, fake.images)

	require.Len(t, updates, 4)
	assert.Equal(t, PassNoImage, updates[0].Pass)
	assert.Equal(t, PassWithImage, updates[3].Pass)
	assert.Equal(t, 1.0, updates[3].Progress())
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	items := []string{"t001", "f002", "t003", "f004"}
	replies := []string{"<yes>", "<no>", "yes I would"}

	ref := newFixture(t)
	ref.cfg.Experiment = config.ExperimentBoth
	want, err := ref.runAll(t, &fakeCompleter{replies: replies}, items)
	require.NoError(t, err)

	f := newFixture(t)
	f.cfg.Experiment = config.ExperimentBoth

	// The first pass dies on its third item.
	_, err = f.runAll(t, &fakeCompleter{replies: replies, failOn: "claims Z"}, items)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrProviderFailed)

	saved, err := checkpoint.NewStore(f.cfg.Output.Checkpoint).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"t001", "f002"}, saved.NoImage.Done, "failed item is not recorded")
	assert.Nil(t, saved.WithImage)
	assert.False(t, saved.Finished)

	f.cfg.Recover = true
	resumed := &fakeCompleter{replies: replies}
	got, err := f.runAll(t, resumed, items)
	require.NoError(t, err)
	assert.Equal(t, 6, resumed.calls, "only the missing items are requested")
	assert.True(t, got[0].Resumed)

	opts := []cmp.Option{
		cmpopts.IgnoreFields(checkpoint.Snapshot{}, "RunID", "SavedAt"),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(want[0].Snapshot, got[0].Snapshot, opts...); diff != "" {
		t.Errorf("resumed snapshot differs (-want +got):\n%s", diff)
	}
}

func TestResumeFinishedRunIssuesNoCalls(t *testing.T) {
	f := newFixture(t)
	_, err := f.runAll(t, &fakeCompleter{replies: []string{"<yes>"}}, []string{"t001"})
	require.NoError(t, err)

	f.cfg.Recover = true
	fake := &fakeCompleter{replies: []string{"<yes>"}}
	outs, err := f.runAll(t, fake, []string{"t001"})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Zero(t, fake.calls)
	assert.Equal(t, []string{"t001"}, outs[0].Snapshot.NoImage.Done)
}

func TestRecoverRequiresCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.cfg.Recover = true
	_, err := f.runAll(t, &fakeCompleter{}, []string{"t001"})
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestRecoverRefusesOtherSettings(t *testing.T) {
	f := newFixture(t)
	_, err := f.runAll(t, &fakeCompleter{replies: []string{"<yes>"}}, []string{"t001"})
	require.NoError(t, err)

	f.cfg.Recover = true
	f.cfg.Samples = 5
	_, err = f.runAll(t, &fakeCompleter{}, []string{"t001"})
	assert.ErrorIs(t, err, checkpoint.ErrMismatch)
}

func TestFreshRunRemovesStaleCheckpoint(t *testing.T) {
	f := newFixture(t)
	_, err := f.runAll(t, &fakeCompleter{replies: []string{"<yes>"}}, []string{"t001", "f002"})
	require.NoError(t, err)

	fake := &fakeCompleter{replies: []string{"<no>"}}
	outs, err := f.runAll(t, fake, []string{"f002"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, []string{"f002"}, outs[0].Snapshot.NoImage.Done)
}

func TestCompositionErrorsBeforeSpend(t *testing.T) {
	f := newFixture(t)
	f.cfg.DialogsPost = config.StringList{"yesno", "nonexistent"}
	fake := &fakeCompleter{replies: []string{"<yes>"}}
	_, err := f.runAll(t, fake, []string{"t001", "f002"})
	assert.ErrorIs(t, err, corpus.ErrUnknownDialog)
	assert.Zero(t, fake.calls)
}

func TestInvalidPersonaBeforeSpend(t *testing.T) {
	f := newFixture(t)
	f.cfg.Demographics = map[string]string{"age": "ancient"}
	fake := &fakeCompleter{replies: []string{"<yes>"}}
	_, err := f.runAll(t, fake, []string{"t001"})
	assert.ErrorIs(t, err, corpus.ErrInvalidPersona)
	assert.Zero(t, fake.calls)
}

func TestMissingImageBeforeSpend(t *testing.T) {
	f := newFixture(t)
	f.cfg.Experiment = config.ExperimentBoth
	require.NoError(t, os.Remove(f.composer.Images.Path("f002.jpg")))
	fake := &fakeCompleter{replies: []string{"<yes>"}}

	_, err := f.runAll(t, fake, []string{"t001", "f002"})
	assert.ErrorIs(t, err, prompt.ErrImageUnavailable)
	assert.Contains(t, err.Error(), "item f002")
	assert.Zero(t, fake.calls)
}

func TestUnfilledPersonaPlaceholderBeforeSpend(t *testing.T) {
	f := newFixture(t)
	f.composer.Dialogs = corpus.NewDialogs([]corpus.Dialog{
		{ID: "intro", Content: "Consider this post.{content_dems}"},
		{ID: "yesno", Content: "Would you share it? Reply <yes> or <no>."},
		{ID: "content_dems", Content: " You are {age} from {country}."},
	})
	f.cfg.Demographics = map[string]string{"age": "young"}
	fake := &fakeCompleter{replies: []string{"<yes>"}}

	_, err := f.runAll(t, fake, []string{"t001"})
	assert.ErrorIs(t, err, corpus.ErrInvalidPersona)
	assert.Zero(t, fake.calls)
}

func TestCheckNews(t *testing.T) {
	f := newFixture(t)
	f.cfg.Experiment = config.ExperimentCheckNews
	f.cfg.DialogsPre = nil
	f.cfg.DialogsPost = nil
	f.cfg.Normalize()
	require.Equal(t, 1, f.cfg.Samples)

	fake := &fakeCompleter{replies: []string{"  The claim is about X.\n"}}
	outs, err := f.runAll(t, fake, []string{"t001"})
	require.NoError(t, err)

	state := outs[0].Snapshot.NoImage
	assert.Equal(t, classify.KindCheck, state.Scores[0].Kind)
	assert.Equal(t, "The claim is about X.", state.Scores[0].Answer)
	require.Len(t, state.Prompts[0], 1)
	assert.Contains(t, state.Prompts[0][0].Content, "Summarize the claim.")
}

func TestMultiDemography(t *testing.T) {
	f := newFixture(t)
	f.cfg.MultiDemography = map[string][]string{"age": {"young", "old"}}
	fake := &fakeCompleter{replies: []string{"<yes>"}}

	outs, err := f.runAll(t, fake, []string{"t001"})
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Contains(t, outs[0].Snapshot.NoImage.Prompts[0][0].Content, "You are young.")
	assert.Contains(t, outs[1].Snapshot.NoImage.Prompts[0][0].Content, "You are old.")
	assert.FileExists(t, f.cfg.Output.Checkpoint)
	assert.FileExists(t, f.cfg.Output.Checkpoint+".01")

	// Recovering skips finished variants.
	f.cfg.Recover = true
	again := &fakeCompleter{replies: []string{"<yes>"}}
	outs, err = f.runAll(t, again, []string{"t001"})
	require.NoError(t, err)
	assert.Empty(t, outs)
	assert.Zero(t, again.calls)

	// A variant that never started is run from scratch.
	require.NoError(t, os.Remove(f.cfg.Output.Checkpoint+".01"))
	outs, err = f.runAll(t, again, []string{"t001"})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, 1, outs[0].Variant.Index)
	assert.Equal(t, 1, again.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	variants, err := f.cfg.Variants(nil)
	require.NoError(t, err)
	err = f.runner(t, &fakeCompleter{}).RunAll(ctx, variants, []string{"t001"}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSelectItems(t *testing.T) {
	f := newFixture(t)

	ids, err := SelectItems(f.cfg, f.news)
	require.NoError(t, err)
	assert.Equal(t, []string{"t001", "f002", "t003", "f004"}, ids)

	f.cfg.NewsAmount = 2
	ids, err = SelectItems(f.cfg, f.news)
	require.NoError(t, err)
	assert.Equal(t, []string{"f002", "t001"}, ids)

	f.cfg.NewsIDs = []string{"t003", "t003", "f004"}
	ids, err = SelectItems(f.cfg, f.news)
	require.NoError(t, err)
	assert.Equal(t, []string{"t003", "f004"}, ids)

	f.cfg.NewsIDs = []string{"x999"}
	_, err = SelectItems(f.cfg, f.news)
	assert.ErrorIs(t, err, corpus.ErrUnknownItem)
}

func TestPassesAndPaths(t *testing.T) {
	assert.Equal(t, []Pass{PassNoImage, PassWithImage}, Passes(config.ExperimentBoth))
	assert.Equal(t, []Pass{PassWithImage}, Passes(config.ExperimentImage))
	assert.Equal(t, []Pass{PassNoImage}, Passes(config.ExperimentCheckNews))
	assert.Equal(t, "data/.back.json", CheckpointPath("data/.back.json", 0))
	assert.Equal(t, "data/.back.json.03", CheckpointPath("data/.back.json", 3))
}
