package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testSession(id string) *Session {
	return &Session{
		ID:         id,
		SchemaHint: "orders(region, revenue)",
		FileContext: map[string]any{
			"name": "sales.csv",
			"rows": []any{map[string]any{"region": "emea", "revenue": 1200.0}},
		},
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())
	defer store.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		sess := testSession("sess-1")
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if sess.CreatedAt.IsZero() || sess.UpdatedAt.IsZero() {
			t.Error("timestamps not set on save")
		}

		got, err := store.Get(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.SchemaHint != sess.SchemaHint {
			t.Errorf("SchemaHint mismatch: got %q", got.SchemaHint)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveInvalid", func(t *testing.T) {
		if err := store.Save(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("nil session: want ErrInvalidInput, got %v", err)
		}
		if err := store.Save(ctx, &Session{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("empty id: want ErrInvalidInput, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		if err := store.Save(ctx, testSession("sess-2")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ids, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "sess-1" || ids[1] != "sess-2" {
			t.Errorf("unexpected ids: %v", ids)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, "sess-2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, "sess-2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("want ErrNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, "sess-2"); err != nil {
			t.Errorf("deleting missing session should be silent, got %v", err)
		}
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Ping(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Ping: want ErrStoreClosed, got %v", err)
	}
	if err := store.Save(ctx, testSession("x")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Save: want ErrStoreClosed, got %v", err)
	}
	if _, err := store.Get(ctx, "x"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get: want ErrStoreClosed, got %v", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	config := DefaultStoreConfig()
	config.TTL = 10 * time.Millisecond
	store := NewMemoryStore(config)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, testSession("ephemeral")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := store.Get(ctx, "ephemeral"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound after TTL, got %v", err)
	}
	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expired session still listed: %v", ids)
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	config := DefaultStoreConfig()
	config.BaseDir = t.TempDir()

	store, err := NewFileStore(config)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, testSession("persisted")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewFileStore(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persisted")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.SchemaHint != "orders(region, revenue)" {
		t.Errorf("SchemaHint lost across reopen: %q", got.SchemaHint)
	}
}

func TestFileStore_DeletePersists(t *testing.T) {
	config := DefaultStoreConfig()
	config.BaseDir = t.TempDir()

	store, err := NewFileStore(config)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	for _, id := range []string{"keep", "drop"} {
		if err := store.Save(ctx, testSession(id)); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}
	if err := store.Delete(ctx, "drop"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewFileStore(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	ids, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "keep" {
		t.Errorf("unexpected ids after reopen: %v", ids)
	}
}

func TestNewStore_Factory(t *testing.T) {
	memory, err := NewStore(StoreConfig{Type: StoreTypeMemory})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	memory.Close()

	fallback, err := NewStore(StoreConfig{})
	if err != nil {
		t.Fatalf("default store: %v", err)
	}
	fallback.Close()

	config := DefaultStoreConfig()
	config.Type = StoreTypeFile
	config.BaseDir = t.TempDir()
	file, err := NewStore(config)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	file.Close()

	if _, err := NewStore(StoreConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("unknown store type should fail")
	}
}
