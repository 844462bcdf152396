package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hession/shreya/internal/chance"
)

func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	tmpDir, err := os.MkdirTemp("", "shreya-memory-test")
	if err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatal(err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

// backends runs fn against every local backend
func backends(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("sqlite", func(t *testing.T) {
		store, cleanup := setupTestDB(t)
		defer cleanup()
		fn(t, store)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewInMemoryStore())
	})
}

func TestStore_GetPutDelete(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		// Unknown user
		rec, err := store.Get(ctx, "@nobody:example.org")
		if err != nil {
			t.Fatalf("Getting unknown user should not return error: %v", err)
		}
		if rec != nil {
			t.Fatal("Unknown user should return nil")
		}

		seen := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
		if err := store.Put(ctx, &Record{ID: "u1", Memory: "User: hi\nBot: hey\n", Mood: "shy", LastSeen: &seen}); err != nil {
			t.Fatalf("Failed to put record: %v", err)
		}

		rec, err = store.Get(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if rec == nil {
			t.Fatal("Record should exist")
		}
		if rec.Memory != "User: hi\nBot: hey\n" || rec.Mood != "shy" {
			t.Errorf("Record mismatch: %+v", rec)
		}
		if rec.LastSeen == nil || !rec.LastSeen.Equal(seen) {
			t.Errorf("LastSeen mismatch: %v", rec.LastSeen)
		}

		// Full replace clears mood and last_seen
		if err := store.Put(ctx, &Record{ID: "u1", Memory: "x"}); err != nil {
			t.Fatal(err)
		}
		rec, _ = store.Get(ctx, "u1")
		if rec.Mood != "" || rec.LastSeen != nil || rec.Memory != "x" {
			t.Errorf("Put should replace the whole record, got %+v", rec)
		}

		if err := store.Delete(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
		rec, _ = store.Get(ctx, "u1")
		if rec != nil {
			t.Error("Record should be deleted")
		}

		// Deleting again is fine
		if err := store.Delete(ctx, "u1"); err != nil {
			t.Errorf("Deleting missing record should not fail: %v", err)
		}
	})
}

func TestSQLiteStore_Durable(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "shreya-memory-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "nested", "memory.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTranscripts(store)
	if _, err := tr.AppendTurn(context.Background(), "u1", "hello", "hi there", 2800); err != nil {
		t.Fatal(err)
	}
	store.Close()

	// Reopen, simulating a restart
	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	mem, err := NewTranscripts(store).Get(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if mem != "User: hello\nBot: hi there\n" {
		t.Errorf("Transcript not persisted across reopen: %q", mem)
	}
}

func TestTrim(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		ceiling  int
		expected string
	}{
		{"under ceiling", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"keeps suffix", "abcdefgh", 3, "fgh"},
		{"zero ceiling", "abc", 0, ""},
		{"runes not bytes", "नमस्ते", 2, "ते"},
		{"multibyte under ceiling", "héllo", 5, "héllo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trim(tt.s, tt.ceiling); got != tt.expected {
				t.Errorf("Trim(%q, %d) = %q, want %q", tt.s, tt.ceiling, got, tt.expected)
			}
		})
	}
}

func TestTranscripts_AppendTurn(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := NewTranscripts(store)
		fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
		tr.now = func() time.Time { return fixed }

		mem, err := tr.Get(ctx, "guest")
		if err != nil || mem != "" {
			t.Fatalf("Unknown user transcript should be empty, got %q, %v", mem, err)
		}

		mem, err = tr.AppendTurn(ctx, "guest", "hello", "hey you", 2800)
		if err != nil {
			t.Fatal(err)
		}
		if mem != "User: hello\nBot: hey you\n" {
			t.Errorf("Unexpected transcript: %q", mem)
		}

		rec, _ := store.Get(ctx, "guest")
		if rec.LastSeen == nil || !rec.LastSeen.Equal(fixed) {
			t.Errorf("last_seen not stamped: %v", rec.LastSeen)
		}

		mem, _ = tr.AppendTurn(ctx, "guest", "how are you", "good", 2800)
		if mem != "User: hello\nBot: hey you\nUser: how are you\nBot: good\n" {
			t.Errorf("Turns should concatenate in order: %q", mem)
		}
	})
}

func TestTranscripts_BoundedSuffix(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := NewTranscripts(store)
		const ceiling = 120

		var full string
		for i := 0; i < 40; i++ {
			user := strings.Repeat("u", i%7+1)
			bot := strings.Repeat("b", i%5+3)
			full += FormatTurn(user, bot)

			mem, err := tr.AppendTurn(ctx, "u", user, bot, ceiling)
			if err != nil {
				t.Fatal(err)
			}
			if len([]rune(mem)) > ceiling {
				t.Fatalf("turn %d: transcript length %d exceeds ceiling", i, len(mem))
			}
			if !strings.HasSuffix(full, mem) {
				t.Fatalf("turn %d: stored transcript is not a suffix of the full log", i)
			}
			if len(full) >= ceiling && len(mem) != ceiling {
				t.Fatalf("turn %d: expected exactly %d characters, got %d", i, ceiling, len(mem))
			}
		}
	})
}

func TestTranscripts_AppendKeepsMood(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	moods := NewMoods(store, nil, &chance.Fixed{})
	if err := moods.Set(ctx, "u", "loving"); err != nil {
		t.Fatal(err)
	}

	if _, err := NewTranscripts(store).AppendTurn(ctx, "u", "a", "b", 100); err != nil {
		t.Fatal(err)
	}

	mood, ok, _ := moods.Get(ctx, "u")
	if !ok || mood != "loving" {
		t.Errorf("AppendTurn should preserve mood, got %q", mood)
	}
}

func TestTranscripts_ClearRemovesRecord(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := NewTranscripts(store)
		moods := NewMoods(store, nil, &chance.Fixed{Ints: []int{3}})

		if _, _, err := moods.AssignDefaultIfAbsent(ctx, "u"); err != nil {
			t.Fatal(err)
		}
		if _, err := tr.AppendTurn(ctx, "u", "hi", "hello", 100); err != nil {
			t.Fatal(err)
		}

		if err := tr.Clear(ctx, "u"); err != nil {
			t.Fatal(err)
		}

		mem, _ := tr.Get(ctx, "u")
		if mem != "" {
			t.Errorf("Memory should be empty after clear, got %q", mem)
		}
		if _, ok, _ := moods.Get(ctx, "u"); ok {
			t.Error("Mood should be absent after clear")
		}
		if rec, _ := store.Get(ctx, "u"); rec != nil {
			t.Error("Record should not exist after clear")
		}
	})
}

func TestTranscripts_Lookup(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tr := NewTranscripts(store)
		moods := NewMoods(store, nil, &chance.Fixed{})

		if _, found, err := tr.Lookup(ctx, "u"); found || err != nil {
			t.Fatalf("Unknown user should not be found, found=%v err=%v", found, err)
		}

		// A mood alone creates the record with an empty transcript
		if err := moods.Set(ctx, "u", "shy"); err != nil {
			t.Fatal(err)
		}
		mem, found, err := tr.Lookup(ctx, "u")
		if err != nil || !found || mem != "" {
			t.Errorf("Expected found empty transcript, got %q found=%v err=%v", mem, found, err)
		}
	})
}

func TestMoods_SetAndGet(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		moods := NewMoods(store, nil, &chance.Fixed{})

		if _, ok, err := moods.Get(ctx, "u"); ok || err != nil {
			t.Fatalf("Unknown user mood should be absent, ok=%v err=%v", ok, err)
		}

		if err := moods.Set(ctx, "u", "  Teasing "); err != nil {
			t.Fatal(err)
		}
		mood, ok, err := moods.Get(ctx, "u")
		if err != nil || !ok || mood != "teasing" {
			t.Errorf("Expected teasing, got %q ok=%v err=%v", mood, ok, err)
		}
	})
}

func TestMoods_SetInvalid(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	moods := NewMoods(store, nil, &chance.Fixed{})

	// Invalid on a fresh user creates nothing
	err := moods.Set(ctx, "u", "grumpy")
	if !errors.Is(err, ErrInvalidMood) {
		t.Fatalf("Expected ErrInvalidMood, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("Invalid set must not create a record")
	}

	// Invalid on an existing user leaves the mood unchanged
	if err := moods.Set(ctx, "u", "shy"); err != nil {
		t.Fatal(err)
	}
	if err := moods.Set(ctx, "u", "grumpy"); !errors.Is(err, ErrInvalidMood) {
		t.Fatalf("Expected ErrInvalidMood, got %v", err)
	}
	mood, _, _ := moods.Get(ctx, "u")
	if mood != "shy" {
		t.Errorf("Mood should stay shy, got %q", mood)
	}
}

func TestMoods_AssignDefaultIfAbsent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	moods := NewMoods(store, nil, &chance.Fixed{Ints: []int{2, 5}})

	mood, assigned, err := moods.AssignDefaultIfAbsent(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if !assigned || mood != DefaultMoods[2] {
		t.Errorf("Expected newly assigned %q, got %q assigned=%v", DefaultMoods[2], mood, assigned)
	}

	// Subsequent reads return the same value
	again, assigned, _ := moods.AssignDefaultIfAbsent(ctx, "u")
	if assigned || again != mood {
		t.Errorf("Second call should return stored %q, got %q assigned=%v", mood, again, assigned)
	}
	stored, _, _ := moods.Get(ctx, "u")
	if stored != mood {
		t.Errorf("Mood not persisted: %q", stored)
	}
}

func TestMoods_Options(t *testing.T) {
	moods := NewMoods(NewInMemoryStore(), []string{"Calm", "Sleepy"}, nil)

	opts := moods.Options()
	if len(opts) != 2 || opts[0] != "calm" || opts[1] != "sleepy" {
		t.Errorf("Unexpected options: %v", opts)
	}
	opts[0] = "mutated"
	if !moods.Valid("CALM") {
		t.Error("Options should return a copy")
	}
	if moods.Valid("playful") {
		t.Error("Custom enumeration should replace defaults")
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewStore(ctx, Options{Driver: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*InMemoryStore); !ok {
		t.Errorf("Expected InMemoryStore, got %T", store)
	}

	tmpDir := t.TempDir()
	store, err = NewStore(ctx, Options{DBPath: filepath.Join(tmpDir, "m.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("Empty driver should default to sqlite, got %T", store)
	}

	if _, err := NewStore(ctx, Options{Driver: "postgres"}); err == nil {
		t.Error("postgres without url should fail")
	}
	if _, err := NewStore(ctx, Options{Driver: "redis"}); err == nil {
		t.Error("Unknown driver should fail")
	}
}

// TestPostgresStore runs against a live server when SHREYA_TEST_DATABASE_URL is set
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("SHREYA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SHREYA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer store.Close()

	id := "test-" + time.Now().Format("20060102150405.000000000")
	defer store.Delete(ctx, id)

	if rec, err := store.Get(ctx, id); err != nil || rec != nil {
		t.Fatalf("Get() on missing id = %v, %v", rec, err)
	}

	seen := time.Now().UTC().Truncate(time.Second)
	if err := store.Put(ctx, &Record{ID: id, Memory: "User: hi\nBot: hii\n", Mood: "shy", LastSeen: &seen}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rec, err := store.Get(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("Get() = %v, %v", rec, err)
	}
	if rec.Memory != "User: hi\nBot: hii\n" || rec.Mood != "shy" {
		t.Errorf("Get() = %+v", rec)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if rec, _ := store.Get(ctx, id); rec != nil {
		t.Errorf("record still present after Delete: %+v", rec)
	}
}
