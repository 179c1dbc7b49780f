package history

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/database"
)

func openSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.OpenSQLite(database.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store := NewSQLiteStore(db, nil)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)

	want := []Turn{UserTurn("Hello"), AssistantTurn("Hi there"), UserTurn("元気？")}
	if err := store.Save(ctx, "u1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := store.Load(ctx, "u1"); !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}

	shorter := want[:1]
	if err := store.Save(ctx, "u1", shorter); err != nil {
		t.Fatal(err)
	}
	if got := store.Load(ctx, "u1"); !reflect.DeepEqual(got, shorter) {
		t.Errorf("Load after overwrite = %v, want %v", got, shorter)
	}
}

func TestSQLiteStore_Missing(t *testing.T) {
	store := openSQLiteStore(t)
	if got := store.Load(context.Background(), "ghost"); len(got) != 0 {
		t.Errorf("Load(missing) = %v", got)
	}
	if s := store.Stats(); s.Missing != 1 {
		t.Errorf("Stats = %+v, want Missing=1", s)
	}
}

func TestSQLiteStore_CorruptRole(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)

	if _, err := store.db.Exec(
		"INSERT INTO history_turns (user_id, seq, role, content) VALUES ('u', 0, 'narrator', 'x')"); err != nil {
		t.Fatal(err)
	}
	if got := store.Load(ctx, "u"); len(got) != 0 {
		t.Errorf("Load(corrupt) = %v", got)
	}
	if s := store.Stats(); s.Unreadable != 1 {
		t.Errorf("Stats = %+v, want Unreadable=1", s)
	}
}

func TestSQLiteStore_ListDelete(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)

	for _, id := range []string{"b", "a"} {
		if err := store.Save(ctx, id, makeTurns(2)); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Errorf("List = %v", ids)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	ids, _ = store.List(ctx)
	if !reflect.DeepEqual(ids, []string{"b"}) {
		t.Errorf("List after Delete = %v", ids)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := openSQLiteStore(t)
	if err := database.Migrate(store.db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	v, err := database.CurrentVersion(store.db)
	if err != nil {
		t.Fatal(err)
	}
	if v != database.SchemaVersion {
		t.Errorf("CurrentVersion = %d, want %d", v, database.SchemaVersion)
	}
}
