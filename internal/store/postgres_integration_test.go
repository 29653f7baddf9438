package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations"), zap.NewNop()); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	return NewPostgresStore(db)
}

func TestPostgresCollectionSemantics(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	if err := s.Codes().Insert(ctx, Code{ID: "c1", Name: "first"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := s.Codes().Insert(ctx, Code{ID: "c1", Name: "second"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Insert() error = %v, want ErrDuplicate", err)
	}

	updated, err := s.Codes().Update(ctx, "c1", func(code *Code) error {
		code.Color = 7
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "first" || updated.Color != 7 {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := s.Codes().Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Codes().Get(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := s.Codes().Delete(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestPostgresConcurrentAppendsKeepEveryLink(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()
	if err := s.Projects().Insert(ctx, Project{ID: "p1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if _, err := s.Projects().Update(ctx, "p1", func(p *Project) error {
				p.Notes = append(p.Notes, Ref[Note](id))
				return nil
			}); err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	project, err := s.Projects().Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(project.Notes) != writers {
		t.Fatalf("expected %d note links, got %d", writers, len(project.Notes))
	}
}

func TestPostgresCreateProjectIsAtomic(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	owner := ProjectPrivilege{ID: PrivilegeID("p1", "u1"), ProjectID: "p1", UserID: "u1", Level: 40}
	tree := ProjectTree{Project: Project{ID: "p1"}, Codes: []Code{{ID: "c1"}}}
	if err := s.CreateProject(ctx, tree, owner); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	other := ProjectPrivilege{ID: PrivilegeID("p1", "u2"), ProjectID: "p1", UserID: "u2", Level: 40}
	again := ProjectTree{Project: Project{ID: "p1"}, Codes: []Code{{ID: "c2"}}}
	if err := s.CreateProject(ctx, again, other); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CreateProject() error = %v, want ErrDuplicate", err)
	}
	if _, err := s.Privileges().Get(ctx, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("grant written despite duplicate: %v", err)
	}

	grants, err := s.Privileges().Find(ctx, "user_id", "u1")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(grants) != 1 || grants[0].Level != 40 {
		t.Fatalf("unexpected grants: %+v", grants)
	}
}

func TestPostgresCreateTextFileIsAtomic(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()
	if err := s.TextFiles().Insert(ctx, TextFile{ID: "f1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	err := s.CreateTextFile(ctx, TextFile{ID: "f1"}, []CodingVersion{{ID: "cv1"}})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CreateTextFile() error = %v, want ErrDuplicate", err)
	}
	if _, err := s.CodingVersions().Get(ctx, "cv1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("coding version written despite duplicate: %v", err)
	}
}

func TestPostgresUsersRejectTakenEmail(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()
	if err := s.Users().Insert(ctx, User{ID: "u1", Email: "ada@example.com"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := s.Users().Insert(ctx, User{ID: "u2", Email: "ADA@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Insert() error = %v, want ErrDuplicate", err)
	}
}
