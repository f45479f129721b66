package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestPingAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ping.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping open store: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	if err := st.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error after close")
	}
}

func TestInTxRunsHooksAfterCommit(t *testing.T) {
	st := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string
	detached := false
	err := st.InTx(ctx, func(tx *Tx) error {
		tx.OnCommit(func(ctx context.Context) {
			order = append(order, "first")
			detached = ctx.Done() == nil
		})
		tx.OnCommit(func(context.Context) { order = append(order, "second") })
		order = append(order, "body")
		return nil
	})
	if err != nil {
		t.Fatalf("in tx: %v", err)
	}
	if len(order) != 3 || order[0] != "body" || order[1] != "first" || order[2] != "second" {
		t.Fatalf("unexpected hook order: %v", order)
	}
	if !detached {
		t.Fatal("hook context must be detached from caller cancellation")
	}
}

func TestInTxSkipsHooksOnRollback(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	ran := false
	err := st.InTx(ctx, func(tx *Tx) error {
		tx.OnCommit(func(context.Context) { ran = true })
		if err := tx.CreateAttachment(ctx, newInlineAttachment("rolled-back", []byte("x"))); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran {
		t.Fatal("hook ran after rollback")
	}
	list, err := st.ListAttachments(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected rollback to discard insert, got %d rows", len(list))
	}
}

func TestInTxHookPanicDoesNotStopLaterHooks(t *testing.T) {
	st := testStore(t)
	ran := false
	err := st.InTx(context.Background(), func(tx *Tx) error {
		tx.OnCommit(func(context.Context) { panic("hook failure") })
		tx.OnCommit(func(context.Context) { ran = true })
		return nil
	})
	if err != nil {
		t.Fatalf("in tx: %v", err)
	}
	if !ran {
		t.Fatal("expected second hook to run")
	}
}

func TestSettingsCRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetSetting(ctx, "s3.bucket"); err != nil || ok {
		t.Fatalf("expected unset setting, ok=%v err=%v", ok, err)
	}
	if err := st.SetSetting(ctx, "s3.bucket", "one"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.SetSetting(ctx, "s3.bucket", "two"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := st.SetSetting(ctx, "storage.location", "s3"); err != nil {
		t.Fatalf("set location: %v", err)
	}

	setting, ok, err := st.GetSetting(ctx, "s3.bucket")
	if err != nil || !ok || setting.Value != "two" {
		t.Fatalf("expected two, got %+v ok=%v err=%v", setting, ok, err)
	}
	if setting.Key != "s3.bucket" || setting.UpdatedAt.IsZero() {
		t.Fatalf("expected key and timestamp, got %+v", setting)
	}

	all, err := st.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if len(all) != 2 || all["storage.location"] != "s3" {
		t.Fatalf("unexpected settings map: %v", all)
	}

	list, err := st.ListSettings(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "s3.bucket" || list[0].UpdatedAt.IsZero() {
		t.Fatalf("unexpected settings list: %+v", list)
	}

	if err := st.DeleteSetting(ctx, "s3.bucket"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.DeleteSetting(ctx, "s3.bucket"); err != nil {
		t.Fatalf("delete twice: %v", err)
	}
	if _, ok, _ := st.GetSetting(ctx, "s3.bucket"); ok {
		t.Fatal("expected setting removed")
	}
}
