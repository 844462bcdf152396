package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hession/shreya/internal/chance"
)

// ErrInvalidMood is returned when a mood outside the enumeration is set.
var ErrInvalidMood = errors.New("invalid mood")

// DefaultMoods is the built-in mood enumeration.
var DefaultMoods = []string{"playful", "moody", "flirty", "shy", "teasing", "loving", "caring"}

// Moods manages the per-user mood field.
type Moods struct {
	store Store
	moods []string
	rand  chance.Source
}

// NewMoods creates a mood manager. An empty enumeration falls back to DefaultMoods.
func NewMoods(store Store, moods []string, src chance.Source) *Moods {
	if len(moods) == 0 {
		moods = DefaultMoods
	}
	normalized := make([]string, 0, len(moods))
	for _, m := range moods {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(m)))
	}
	if src == nil {
		src = chance.Default()
	}
	return &Moods{store: store, moods: normalized, rand: src}
}

// Options returns the mood enumeration
func (m *Moods) Options() []string {
	return slices.Clone(m.moods)
}

// Valid reports whether mood is part of the enumeration
func (m *Moods) Valid(mood string) bool {
	return slices.Contains(m.moods, strings.ToLower(strings.TrimSpace(mood)))
}

// Get returns the stored mood and whether one is set
func (m *Moods) Get(ctx context.Context, id string) (string, bool, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if rec == nil || rec.Mood == "" {
		return "", false, nil
	}
	return rec.Mood, true, nil
}

// Set assigns mood to id, creating the record if needed.
// Values outside the enumeration fail with ErrInvalidMood and write nothing.
func (m *Moods) Set(ctx context.Context, id, mood string) error {
	mood = strings.ToLower(strings.TrimSpace(mood))
	if !slices.Contains(m.moods, mood) {
		return fmt.Errorf("%w: %q (options: %s)", ErrInvalidMood, mood, strings.Join(m.moods, ", "))
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{ID: id}
	}
	rec.Mood = mood
	return m.store.Put(ctx, rec)
}

// AssignDefaultIfAbsent returns the stored mood, or samples one uniformly,
// persists it and returns it. The bool reports whether a new mood was assigned.
func (m *Moods) AssignDefaultIfAbsent(ctx context.Context, id string) (string, bool, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if rec != nil && rec.Mood != "" {
		return rec.Mood, false, nil
	}
	if rec == nil {
		rec = &Record{ID: id}
	}

	rec.Mood = chance.Pick(m.rand, m.moods)
	if err := m.store.Put(ctx, rec); err != nil {
		return "", false, fmt.Errorf("failed to assign mood: %w", err)
	}
	return rec.Mood, true, nil
}
