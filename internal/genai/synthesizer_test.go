package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storylist/internal/model"
)

type fakeSettings map[string]string

func (f fakeSettings) SettingString(ctx context.Context, key string) (string, error) {
	return f[key], nil
}

func newTestSynthesizer(client *Client) *Synthesizer {
	s := &Synthesizer{
		chatModel:  "chat-model",
		imageModel: "image-model",
		fallback:   "env-key",
		log:        logrus.WithField("component", "synthesizer"),
	}
	if client == nil {
		client = NewClient("", false, s.resolveKey)
	}
	if client.key == nil {
		client.key = s.resolveKey
	}
	s.client = client
	return s
}

func TestParseSeedsStripsFences(t *testing.T) {
	content := "```json\n{\"story\": [{\"originalTask\": \"Brush teeth\", \"sentences\": [\"a\", \"b\", \"c\", \"d\"]}]}\n```"
	seeds, err := parseSeeds(content)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, "Brush teeth", seeds[0].OriginalTask)
	assert.Len(t, seeds[0].Sentences, model.SeedSentences)
}

func TestParseSeedsRejectsGarbage(t *testing.T) {
	_, err := parseSeeds("sorry, I cannot help with that")
	require.Error(t, err)
}

func TestValidateSeeds(t *testing.T) {
	tasks := []string{"Brush teeth", "Pack bag"}

	good := []model.SegmentSeed{
		{OriginalTask: "Brush teeth", Sentences: []string{"a", "b", "c", "d"}},
		{OriginalTask: "Pack bag", Sentences: []string{"e", "f", "g", "h"}},
	}
	require.NoError(t, validateSeeds(good, tasks))

	missing := good[:1]
	require.Error(t, validateSeeds(missing, tasks), "one entry per task is required")

	short := []model.SegmentSeed{
		good[0],
		{OriginalTask: "Pack bag", Sentences: []string{"e", "f"}},
	}
	require.Error(t, validateSeeds(short, tasks), "fewer than three sentences is malformed output")
}

func TestSynthesizeStoryRequiresTasks(t *testing.T) {
	s := newTestSynthesizer(nil)
	_, err := s.SynthesizeStory(context.Background(), "Age: 6", nil)
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
}

func TestSynthesizeStoryMock(t *testing.T) {
	s := newTestSynthesizer(NewClient("", true, nil))
	tasks := []string{"Brush teeth", "Pack bag"}

	seeds, err := s.SynthesizeStory(context.Background(), "Age: 6", tasks)
	require.NoError(t, err)
	require.Len(t, seeds, len(tasks))
	for i, seed := range seeds {
		assert.Equal(t, tasks[i], seed.OriginalTask)
		assert.Len(t, seed.Sentences, model.SeedSentences)
	}
}

func TestSynthesizeSegmentImageWrapsPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer env-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data": [{"b64_json": "aW1n", "format": "png"}]}`))
	}))
	defer srv.Close()

	s := newTestSynthesizer(&Client{BaseURL: srv.URL, HTTPClient: srv.Client()})
	image, err := s.SynthesizeSegmentImage(context.Background(), "data:image/png;base64,cmVm", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,aW1n", image)

	inputs, ok := gotBody["image"].([]any)
	require.True(t, ok, "reference image is sent as image input")
	require.Len(t, inputs, 1)
	assert.Equal(t, "data:image/png;base64,cmVm", inputs[0])
}

func TestSynthesizeSegmentImageNoPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	s := newTestSynthesizer(&Client{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := s.SynthesizeSegmentImage(context.Background(), "data:image/png;base64,cmVm", []string{"a", "b", "c"})
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, "segment image", synthErr.Op)
}

func TestSynthesizeCharacterImageMock(t *testing.T) {
	s := newTestSynthesizer(NewClient("", true, nil))
	image, err := s.SynthesizeCharacterImage(context.Background(), "Age: 6")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+mockPixel, image)
}

func TestResolveKeyPrefersSetting(t *testing.T) {
	s := newTestSynthesizer(nil)
	ctx := context.Background()

	assert.Equal(t, "env-key", s.resolveKey(ctx))

	s.settings = fakeSettings{model.SettingAPIKey: "stored-key"}
	assert.Equal(t, "stored-key", s.resolveKey(ctx))

	s.settings = fakeSettings{}
	assert.Equal(t, "env-key", s.resolveKey(ctx))
}
