package settings

import (
	"os"
	"path/filepath"
	"testing"

	logx "wabot/pkg/logx"
)

func TestReadMissingRecordYieldsDefaults(t *testing.T) {
	t.Parallel()
	st := New(filepath.Join(t.TempDir(), "message.json"), logx.Nop())

	got := st.Read()
	if got.Salutation != "" || got.Message != "" {
		t.Fatalf("Read = %+v, want empty defaults", got)
	}
}

func TestReadCorruptRecordYieldsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "message.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st := New(path, logx.Nop())

	got := st.Read()
	if got.Salutation != "" || got.Message != "" {
		t.Fatalf("Read = %+v, want empty defaults", got)
	}
}

func TestWriteThenRead(t *testing.T) {
	t.Parallel()
	st := New(filepath.Join(t.TempDir(), "msg", "message.json"), logx.Nop())

	if ok := st.Write("Team", "campaign starts Monday"); !ok {
		t.Fatal("Write reported failure")
	}
	got := st.Read()
	if got.Salutation != "Team" || got.Message != "campaign starts Monday" {
		t.Fatalf("Read = %+v", got)
	}

	// Wholesale replace, no merge.
	if ok := st.Write("", "updated"); !ok {
		t.Fatal("Write reported failure")
	}
	got = st.Read()
	if got.Salutation != "" || got.Message != "updated" {
		t.Fatalf("Read after overwrite = %+v", got)
	}
}

func TestInitCreatesDefaultsOnce(t *testing.T) {
	t.Parallel()
	st := New(filepath.Join(t.TempDir(), "message.json"), logx.Nop())

	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st.Write("Hi", "body")
	// Second Init must not clobber existing record.
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := st.Read(); got.Salutation != "Hi" {
		t.Fatalf("Init overwrote record: %+v", got)
	}
}
