package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"storylist/internal/config"
	"storylist/internal/model"
)

const storyWriterInstruction = `You are a children's story writer. Turn the given list of mundane daily tasks into a thrilling story of conquest and victory. It is alright to stretch the imagination so long as each part relates loosely back to its task. Ensure continuity through the tasks so the story flows from one to the next. Respond in valid JSON format: {"story": [{"originalTask": "...", "sentences": ["...", "...", "...", "..."]}]} with exactly one entry per task, in task order, where originalTask is the original task text and sentences holds exactly 4 sentences of the story for that task.`

const characterImageInstruction = `Generate a single character image for the child described below.
Ensure the character is in a neutral pose with a transparent background.
The character should be in cartoon style animation for a child. Keep it light hearted and simple.`

const segmentImageInstruction = `Generate a single image. Each quarter of the image should illustrate one of the given sentences below.
DO NOT generate any whitespace or borders around the images or attempt to split the frames in any way.
The images MUST be placed left to right top to bottom in the order the sentences are given.
DO NOT include the sentence or any other text in the image.

The frames should be generated in cartoon style animation for a child. Keep it light hearted and simple.
This image is part of a larger storybook that relates back to a daily task.
It is fine for the image to be outlandish and fantasy based. Ensure that the scene is exciting and adventurous.

The provided image contains the child character you should place into the scenes.
You must ensure the character's features are consistent with this image.`

// SettingSource resolves runtime settings stored by the user.
type SettingSource interface {
	SettingString(ctx context.Context, key string) (string, error)
}

// Synthesizer exposes the three content synthesis operations over the
// generative backend. Stateless; every call resolves the credential anew
// so a key saved through settings takes effect immediately.
type Synthesizer struct {
	client     *Client
	chatModel  string
	imageModel string
	settings   SettingSource
	fallback   string
	log        *logrus.Entry
}

// NewSynthesizer creates a synthesizer from config. The settings store
// wins over the configured credential; settings may be nil.
func NewSynthesizer(cfg *config.Config, settings SettingSource) *Synthesizer {
	s := &Synthesizer{
		chatModel:  cfg.ChatModel,
		imageModel: cfg.ImageModel,
		settings:   settings,
		fallback:   cfg.ArkAPIKey,
		log:        logrus.WithField("component", "synthesizer"),
	}
	s.client = NewClient(cfg.ArkBaseURL, cfg.Mock, s.resolveKey)
	return s
}

func (s *Synthesizer) resolveKey(ctx context.Context) string {
	if s.settings != nil {
		key, err := s.settings.SettingString(ctx, model.SettingAPIKey)
		if err != nil {
			s.log.WithError(err).Warn("failed to read API key setting")
		} else if key != "" {
			return key
		}
	}
	return s.fallback
}

// SynthesizeStory turns the checklist tasks into story seeds, one per task
// in task order, each carrying model.SeedSentences sentences.
func (s *Synthesizer) SynthesizeStory(ctx context.Context, childDescription string, tasks []string) ([]model.SegmentSeed, error) {
	if len(tasks) == 0 {
		return nil, synthesisErr("story", errors.New("no tasks"))
	}
	if s.client.Mock {
		return mockSeeds(tasks), nil
	}
	content, err := s.chat(ctx, storyWriterInstruction, storyUserPrompt(childDescription, tasks))
	if err != nil {
		return nil, synthesisErr("story", err)
	}
	seeds, err := parseSeeds(content)
	if err != nil {
		return nil, synthesisErr("story", err)
	}
	if err := validateSeeds(seeds, tasks); err != nil {
		return nil, synthesisErr("story", err)
	}
	for i := range seeds {
		if seeds[i].OriginalTask == "" {
			seeds[i].OriginalTask = tasks[i]
		}
	}
	return seeds, nil
}

// SynthesizeCharacterImage produces the child's character reference render.
func (s *Synthesizer) SynthesizeCharacterImage(ctx context.Context, childDescription string) (string, error) {
	prompt := fmt.Sprintf("%s\n\n<childDetails>\n%s\n</childDetails>\n", characterImageInstruction, childDescription)
	image, err := s.client.GenerateImage(ctx, ImageGenParams{
		Model:  s.imageModel,
		Prompt: prompt,
	})
	if err != nil {
		return "", synthesisErr("character image", err)
	}
	return image, nil
}

// SynthesizeSegmentImage produces one composite image depicting the given
// sentences as quadrants in reading order, keeping the character from the
// reference image consistent.
func (s *Synthesizer) SynthesizeSegmentImage(ctx context.Context, childImage string, sentences []string) (string, error) {
	enc, err := json.MarshalIndent(sentences, "", "  ")
	if err != nil {
		return "", synthesisErr("segment image", err)
	}
	prompt := fmt.Sprintf("%s\n\n<sentences>\n%s\n</sentences>\n", segmentImageInstruction, string(enc))
	image, err := s.client.GenerateImage(ctx, ImageGenParams{
		Model:       s.imageModel,
		Prompt:      prompt,
		ImageInputs: []string{childImage},
	})
	if err != nil {
		return "", synthesisErr("segment image", err)
	}
	return image, nil
}

func (s *Synthesizer) chat(ctx context.Context, instruction, userPrompt string) (string, error) {
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:     s.resolveKey(ctx),
		HTTPClient: s.client.HTTPClient,
		Model:      s.chatModel,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat model: %w", err)
	}

	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return "", fmt.Errorf("failed to build graph: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return "", fmt.Errorf("failed to build graph: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return "", fmt.Errorf("failed to build graph: %w", err)
	}
	runner, err := graph.Compile(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to compile graph: %w", err)
	}

	messages := []*schema.Message{
		schema.SystemMessage(instruction),
		schema.UserMessage(userPrompt),
	}
	res, err := runner.Invoke(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("graph invocation failed: %w", err)
	}
	return res.Content, nil
}

func storyUserPrompt(childDescription string, tasks []string) string {
	var b strings.Builder
	b.WriteString("<childDetails>\n")
	b.WriteString(childDescription)
	b.WriteString("\n</childDetails>\n\n<tasks>\n")
	for _, task := range tasks {
		b.WriteString("- ")
		b.WriteString(task)
		b.WriteString("\n")
	}
	b.WriteString("</tasks>\n")
	return b.String()
}

func parseSeeds(content string) ([]model.SegmentSeed, error) {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp struct {
		Story []model.SegmentSeed `json:"story"`
	}
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("parse story response: %w", err)
	}
	return resp.Story, nil
}

func validateSeeds(seeds []model.SegmentSeed, tasks []string) error {
	if len(seeds) != len(tasks) {
		return fmt.Errorf("expected %d story entries, got %d", len(tasks), len(seeds))
	}
	for i, seed := range seeds {
		if len(seed.Sentences) < model.SegmentSentences {
			return fmt.Errorf("story entry %d has %d sentences, need at least %d", i, len(seed.Sentences), model.SegmentSentences)
		}
	}
	return nil
}

func mockSeeds(tasks []string) []model.SegmentSeed {
	seeds := make([]model.SegmentSeed, 0, len(tasks))
	for _, task := range tasks {
		seeds = append(seeds, model.SegmentSeed{
			OriginalTask: task,
			Sentences: []string{
				fmt.Sprintf("A grand quest began: %s.", task),
				"Our hero set off with a brave heart.",
				"A tricky obstacle appeared along the way.",
				"With one clever move, the quest was won.",
			},
		})
	}
	return seeds
}
