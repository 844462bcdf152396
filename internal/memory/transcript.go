package memory

import (
	"context"
	"fmt"
	"time"
)

// Transcripts manages the bounded per-user conversation log.
type Transcripts struct {
	store Store
	now   func() time.Time
}

// NewTranscripts creates a transcript manager over store
func NewTranscripts(store Store) *Transcripts {
	return &Transcripts{store: store, now: time.Now}
}

// Get returns the transcript for id, "" when the user is unknown
func (t *Transcripts) Get(ctx context.Context, id string) (string, error) {
	rec, err := t.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.Memory, nil
}

// Lookup returns the transcript for id and whether a record exists at all
func (t *Transcripts) Lookup(ctx context.Context, id string) (string, bool, error) {
	rec, err := t.store.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if rec == nil {
		return "", false, nil
	}
	return rec.Memory, true, nil
}

// AppendTurn appends one User/Bot exchange, trims to ceiling runes, stamps
// last_seen and writes the record back. The mood field is preserved.
// It returns the stored transcript.
func (t *Transcripts) AppendTurn(ctx context.Context, id, userText, botText string, ceiling int) (string, error) {
	rec, err := t.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec == nil {
		rec = &Record{ID: id}
	}

	rec.Memory = Trim(rec.Memory+FormatTurn(userText, botText), ceiling)
	now := t.now().UTC()
	rec.LastSeen = &now

	if err := t.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to append turn: %w", err)
	}
	return rec.Memory, nil
}

// Clear removes the whole record, mood included
func (t *Transcripts) Clear(ctx context.Context, id string) error {
	return t.store.Delete(ctx, id)
}

// FormatTurn renders one exchange as stored in the transcript
func FormatTurn(userText, botText string) string {
	return "User: " + userText + "\nBot: " + botText + "\n"
}

// Trim keeps the trailing ceiling runes of s. A non-positive ceiling keeps nothing.
func Trim(s string, ceiling int) string {
	if ceiling <= 0 {
		return ""
	}
	if len(s) <= ceiling {
		// byte length bounds rune count
		return s
	}
	runes := []rune(s)
	if len(runes) <= ceiling {
		return s
	}
	return string(runes[len(runes)-ceiling:])
}
