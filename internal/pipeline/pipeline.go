package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"storylist/internal/model"
)

// Sentinel errors surfaced to callers. Neither is retried: the caller must
// create the missing prerequisite or fix the index.
var (
	ErrNotFound        = errors.New("not found")
	ErrIndexOutOfRange = errors.New("segment index out of range")
)

// Store is the durable state the pipeline reads and writes.
type Store interface {
	GetChecklist(ctx context.Context, id string) (model.Checklist, bool, error)
	GetStory(ctx context.Context, id string) (model.Story, bool, error)
	PutStory(ctx context.Context, id string, story model.Story) error
	SettingString(ctx context.Context, key string) (string, error)
}

// Synthesizer is the generative capability the pipeline calls only when
// data is missing. Every call is expensive and externally billed.
type Synthesizer interface {
	SynthesizeStory(ctx context.Context, childDescription string, tasks []string) ([]model.SegmentSeed, error)
	SynthesizeSegmentImage(ctx context.Context, childImage string, sentences []string) (string, error)
}

// Assembler ensures a story exists for a checklist and that segments get
// their illustration generated at most once. Stories and images are never
// regenerated once present.
//
// All story writes for a checklist id serialize on a per-id lock: the
// store only supports whole-value replacement, so two concurrent
// read-modify-write cycles on the same story would otherwise lose one
// side's update.
type Assembler struct {
	store Store
	synth Synthesizer
	log   *logrus.Entry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAssembler creates an assembler over the given store and synthesizer.
func NewAssembler(store Store, synth Synthesizer) *Assembler {
	return &Assembler{
		store: store,
		synth: synth,
		log:   logrus.WithField("component", "pipeline"),
		locks: make(map[string]*sync.Mutex),
	}
}

func (a *Assembler) lock(checklistID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[checklistID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[checklistID] = l
	}
	return l
}

// childDetails resolves the configured child, falling back to defaults so
// synthesis never blocks on missing settings.
func (a *Assembler) childDetails(ctx context.Context) model.ChildDetails {
	details := model.ChildDetails{
		Description: model.DefaultChildDescription,
		Image:       model.PlaceholderChildImage,
	}
	description, err := a.store.SettingString(ctx, model.SettingChildDescription)
	if err != nil {
		a.log.WithError(err).Warn("failed to read child description setting")
	} else if description != "" {
		details.Description = description
	}
	image, err := a.store.SettingString(ctx, model.SettingChildImage)
	if err != nil {
		a.log.WithError(err).Warn("failed to read child image setting")
	} else if image != "" {
		details.Image = image
	}
	return details
}

// EnsureStory returns the story for checklistID, synthesizing and
// persisting it first if absent. Synthesis runs at most once per checklist
// id; later calls are pure reads. A synthesis failure propagates and
// nothing partial is persisted.
func (a *Assembler) EnsureStory(ctx context.Context, checklistID string) (model.Story, error) {
	l := a.lock(checklistID)
	l.Lock()
	defer l.Unlock()
	return a.ensureStoryLocked(ctx, checklistID)
}

func (a *Assembler) ensureStoryLocked(ctx context.Context, checklistID string) (model.Story, error) {
	story, ok, err := a.store.GetStory(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	if ok {
		return story, nil
	}

	checklist, ok, err := a.store.GetChecklist(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("checklist %s: %w", checklistID, ErrNotFound)
	}

	details := a.childDetails(ctx)
	seeds, err := a.synth.SynthesizeStory(ctx, details.Description, checklist.Tasks())
	if err != nil {
		return nil, fmt.Errorf("synthesize story for checklist %s: %w", checklistID, err)
	}

	story = make(model.Story, 0, len(seeds))
	for _, seed := range seeds {
		sentences := seed.Sentences
		if len(sentences) > model.SegmentSentences {
			sentences = sentences[:model.SegmentSentences]
		}
		story = append(story, model.StorySegment{
			ChecklistText: seed.OriginalTask,
			Sentences:     sentences,
		})
	}
	if err := a.store.PutStory(ctx, checklistID, story); err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"checklist": checklistID,
		"segments":  len(story),
	}).Info("story synthesized")
	return story, nil
}

// EnsureSegmentImage makes sure the segment at index has an illustration.
// It returns true when the image is present afterwards, including the
// cache hit where it already was. A synthesis failure is recovered
// locally: the segment is left untouched and false is returned so the
// caller can retry the same call later.
func (a *Assembler) EnsureSegmentImage(ctx context.Context, checklistID string, index int) (bool, error) {
	l := a.lock(checklistID)
	l.Lock()
	defer l.Unlock()

	story, ok, err := a.store.GetStory(ctx, checklistID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("story %s: %w", checklistID, ErrNotFound)
	}
	if index < 0 || index >= len(story) {
		return false, fmt.Errorf("segment %d of story %s (%d segments): %w", index, checklistID, len(story), ErrIndexOutOfRange)
	}
	if story[index].HasImage() {
		return true, nil
	}

	details := a.childDetails(ctx)
	image, err := a.synth.SynthesizeSegmentImage(ctx, details.Image, story[index].Sentences)
	if err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"checklist": checklistID,
			"segment":   index,
		}).Warn("segment image synthesis failed")
		return false, nil
	}

	story[index].Image = image
	if err := a.store.PutStory(ctx, checklistID, story); err != nil {
		return false, err
	}
	a.log.WithFields(logrus.Fields{
		"checklist": checklistID,
		"segment":   index,
	}).Info("segment image generated")
	return true, nil
}

// PrimeFirstSegment makes sure the story exists and eagerly generates the
// opening illustration. The image attempt is best effort; only missing
// prerequisites or store failures surface as errors.
func (a *Assembler) PrimeFirstSegment(ctx context.Context, checklistID string) error {
	if _, err := a.EnsureStory(ctx, checklistID); err != nil {
		return err
	}
	_, err := a.EnsureSegmentImage(ctx, checklistID, 0)
	return err
}
