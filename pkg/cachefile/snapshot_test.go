package cachefile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSnapshotWriteAndRead(t *testing.T) {
	file := newTestSnapshot(t)

	raws := []json.RawMessage{json.RawMessage(`{"id":1}`), json.RawMessage(`{"id":2}`)}
	if err := file.write(raws); err != nil {
		t.Fatalf("write error: %v", err)
	}

	got, err := file.read()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if len(got) != 2 || string(got[1]) != `{"id":2}` {
		t.Fatalf("unexpected entries: %s", got)
	}
}

func TestSnapshotWriteNilProducesEmptyArray(t *testing.T) {
	file := newTestSnapshot(t)
	if err := file.write(nil); err != nil {
		t.Fatalf("write error: %v", err)
	}
	data, err := os.ReadFile(file.path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected [], got %q", data)
	}
}

func TestSnapshotRecreatesRemovedFile(t *testing.T) {
	file := newTestSnapshot(t)
	if err := os.RemoveAll(filepath.Dir(file.path)); err != nil {
		t.Fatalf("remove dir: %v", err)
	}

	got, err := file.read()
	if err != nil || len(got) != 0 {
		t.Fatalf("missing file should read as empty: %v %v", got, err)
	}
	if err := file.write([]json.RawMessage{json.RawMessage(`1`)}); err != nil {
		t.Fatalf("write should recreate the file: %v", err)
	}
}

func TestSnapshotRejectsNonArray(t *testing.T) {
	file := newTestSnapshot(t)
	if err := os.WriteFile(file.path, []byte(`{"id":1}`), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := file.read(); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestWriterCoalescesToLatest(t *testing.T) {
	file := newTestSnapshot(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	w := newSnapshotWriter(file, noteSerializer.Serialize, logger, nil)
	for i := 0; i < 50; i++ {
		items := make([]note, 0, i+1)
		for j := 0; j <= i; j++ {
			items = append(items, note{ID: j})
		}
		if err := w.submit(items, nil); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if err := w.close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := file.read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("file should hold the last submission, got %d entries", len(got))
	}
	if err := w.submit(nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestWriterFlushHonoursContext(t *testing.T) {
	file := newTestSnapshot(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	block := make(chan struct{})
	encode := func(n note) (json.RawMessage, error) {
		<-block
		return json.Marshal(n)
	}
	w := newSnapshotWriter(file, encode, logger, nil)
	defer func() {
		close(block)
		_ = w.close(context.Background())
	}()

	if err := w.submit([]note{{ID: 1}}, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// newTestSnapshot returns a snapshotFile inside a temporary directory.
func newTestSnapshot(t *testing.T) *snapshotFile {
	t.Helper()
	file, err := openSnapshotFile(filepath.Join(t.TempDir(), "cache", "items.json"))
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	return file
}
