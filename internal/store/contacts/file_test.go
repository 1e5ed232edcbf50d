package contacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "wabot/pkg/logx"
)

func newFileStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "contacts.csv")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestReadAllMissingFile(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)

	got, err := st.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty table, got %d rows", len(got))
	}
}

func TestMergeDedup(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	batch := []Contact{
		{Phone: "911234567890", Name: "Asha"},
		{Phone: "911234567890", Name: "Asha"},
		{Phone: "919999999999"},
	}
	res, err := st.Merge(ctx, batch, false)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Added != 2 || res.Repeated != 0 {
		t.Fatalf("Merge = %+v, want Added=2 Repeated=0", res)
	}

	all, err := st.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("rows = %d, want 2", len(all))
	}
	if all[0].Phone != "911234567890" || all[1].Phone != "919999999999" {
		t.Fatalf("unexpected order: %v", all)
	}
}

func TestMergeRepeatedResetsStatus(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	if _, err := st.Merge(ctx, []Contact{{Phone: "911111111111"}}, false); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := st.UpdateStatus(ctx, []Contact{{Phone: "911111111111"}}, true); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	res, err := st.Merge(ctx, []Contact{{Phone: "911111111111"}}, false)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Added != 0 || res.Repeated != 1 {
		t.Fatalf("Merge = %+v, want Added=0 Repeated=1", res)
	}

	all, _ := st.ReadAll(ctx)
	if len(all) != 1 {
		t.Fatalf("rows = %d, want 1 (no duplicate row)", len(all))
	}
	if all[0].Sent {
		t.Fatal("repeated contact should be eligible again (sent=false)")
	}
}

func TestUpdateStatusIsSelective(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	batch := []Contact{{Phone: "911"}, {Phone: "912"}, {Phone: "913"}}
	if _, err := st.Merge(ctx, batch, false); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := st.UpdateStatus(ctx, []Contact{{Phone: "912"}}, true); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	all, _ := st.ReadAll(ctx)
	want := map[string]bool{"911": false, "912": true, "913": false}
	for _, c := range all {
		if c.Sent != want[c.Phone] {
			t.Fatalf("phone %s sent=%v, want %v", c.Phone, c.Sent, want[c.Phone])
		}
	}
}

func TestResetStampsWholeTable(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	if _, err := st.Merge(ctx, []Contact{{Phone: "911"}, {Phone: "912"}}, false); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := st.UpdateStatus(ctx, []Contact{{Phone: "911"}, {Phone: "912"}}, true); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := st.Reset(ctx, false); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	all, _ := st.ReadAll(ctx)
	for _, c := range all {
		if c.Sent {
			t.Fatalf("phone %s still marked sent after reset", c.Phone)
		}
	}
}

func TestNameSentinelAtFileBoundary(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "contacts.csv")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Merge(ctx, []Contact{{Phone: "911"}, {Phone: "912", Name: "Asha"}}, false); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "911,NULL,false") {
		t.Fatalf("unnamed contact not written with NULL marker:\n%s", raw)
	}

	all, _ := st.ReadAll(ctx)
	if all[0].Name != "" {
		t.Fatalf("NULL marker leaked into memory: %q", all[0].Name)
	}
	if all[0].HasName() {
		t.Fatal("unnamed contact reports HasName")
	}
	if !all[1].HasName() {
		t.Fatal("named contact lost its name")
	}
}

func TestParseImport(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []Contact
	}{
		{
			name: "with header",
			in:   "phone,name\n911234567890,Asha\n919999999999,\n",
			want: []Contact{{Phone: "911234567890", Name: "Asha"}, {Phone: "919999999999"}},
		},
		{
			name: "headerless digits detection",
			in:   "Asha,911234567890\n,919999999999\n",
			want: []Contact{{Phone: "911234567890"}, {Phone: "919999999999"}},
		},
		{
			name: "null marker and blank rows skipped",
			in:   "phone,name\n911,NULL\n,\n",
			want: []Contact{{Phone: "911"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseImport(strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("ParseImport: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("rows = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Phone != tt.want[i].Phone || got[i].Name != tt.want[i].Name {
					t.Fatalf("row %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDedupLastWins(t *testing.T) {
	t.Parallel()
	got := Dedup([]Contact{
		{Phone: "911", Name: "first"},
		{Phone: "912"},
		{Phone: "911", Name: "last"},
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Phone != "911" || got[0].Name != "last" {
		t.Fatalf("expected last duplicate to win, got %+v", got[0])
	}
}
