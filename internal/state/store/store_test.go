package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opentalon/funchost/internal/description"
	"github.com/opentalon/funchost/internal/host"
)

func TestOpenAndMigrations(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var v int
	err = db.SQLDB().QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if v != 1 {
		t.Errorf("schema_version = %d, want 1", v)
	}
	if db.Dialect() != DialectSQLite {
		t.Errorf("Dialect = %q", db.Dialect())
	}

	// Re-open: idempotent, no error
	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}
	defer db2.Close()
	err = db2.SQLDB().QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil {
		t.Fatalf("read schema_version (second open): %v", err)
	}
	if v != 1 {
		t.Errorf("schema_version after re-open = %d, want 1", v)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty data dir")
	}
	if _, err := OpenPostgres(""); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestRebind(t *testing.T) {
	sqlite := &DB{dialect: DialectSQLite}
	pg := &DB{dialect: DialectPostgres}
	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	if got := sqlite.rebind(q); got != q {
		t.Errorf("sqlite rebind = %q", got)
	}
	if got := pg.rebind(q); got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
}

func registration(name, queue string, gen int) host.Registration {
	return host.Registration{
		ID:         name + "-id",
		Generation: gen,
		ResolvedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Descriptor: &description.FunctionDescriptor{
			Name: name,
			Parameters: []description.ParameterDescriptor{
				{Name: "input", Type: description.TypeQueueTrigger, ValueType: description.ValueString,
					Attributes: map[string]string{"queueName": queue}},
				description.LoggerParameter(),
				description.BinderParameter(),
			},
		},
	}
}

func TestRegistrationStore(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	s := NewRegistrationStore(db)
	ctx := context.Background()

	var _ host.Registrar = s

	if err := s.Put(ctx, registration("Worker", "q1", 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, registration("Alpha", "a", 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, registration("Worker", "q2", 2)); err != nil {
		t.Fatalf("Put update: %v", err)
	}

	got, err := s.Get(ctx, "Worker")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Generation != 2 || got.TriggerType != "queue-trigger" {
		t.Errorf("Get = %+v", got)
	}
	if got.Parameters[0].Attributes["queueName"] != "q2" {
		t.Errorf("queueName = %q, want q2", got.Parameters[0].Attributes["queueName"])
	}
	if !got.ResolvedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ResolvedAt = %v", got.ResolvedAt)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Alpha" || list[1].Name != "Worker" {
		t.Errorf("List = %+v", list)
	}

	if err := s.Delete(ctx, "Worker"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "Worker"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "Worker"); err != nil {
		t.Errorf("Delete missing = %v, want nil", err)
	}
}

func TestRegistrationStoreWithHost(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	s := NewRegistrationStore(db)

	reg := registration("Worker", "q1", 1)
	h := host.New(host.ResolverFunc(func(f description.FunctionFolderInfo) (*description.FunctionDescriptor, error) {
		return reg.Descriptor, nil
	}), host.WithRegistrars(s))
	h.Load(context.Background(), []description.FunctionFolderInfo{{Name: "Worker", Source: "Worker/run.js"}})

	got, err := s.Get(context.Background(), "Worker")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	live, _ := h.Lookup("Worker")
	if got.ID != live.ID {
		t.Errorf("stored id = %q, live id = %q", got.ID, live.ID)
	}

	h.Load(context.Background(), nil)
	if _, err := s.Get(context.Background(), "Worker"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after unload = %v, want ErrNotFound", err)
	}
}
