package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"drive-ocr/internal/googlefake"
	"drive-ocr/internal/internalerr"
)

func newDrive(t *testing.T, fake *googlefake.Drive) *Drive {
	t.Helper()
	d, err := New(context.Background(), fake.Options()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestImageQuery(t *testing.T) {
	got := ImageQuery("abc")
	want := "'abc' in parents and mimeType contains 'image/' and trashed = false"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := ImageQuery(`o'k\`); got != `'o\'k\\' in parents and mimeType contains 'image/' and trashed = false` {
		t.Fatalf("escaping: %q", got)
	}
}

func TestParentDiff(t *testing.T) {
	cases := []struct {
		name       string
		parents    []string
		wantAdd    string
		wantRemove []string
	}{
		{"no parents", nil, "done", nil},
		{"single source", []string{"src"}, "done", []string{"src"}},
		{"many parents", []string{"src", "other", "third"}, "done", []string{"src", "other", "third"}},
		{"already done", []string{"done"}, "", nil},
		{"done plus extra", []string{"src", "done"}, "", []string{"src"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			add, remove := ParentDiff(tc.parents, "done")
			if add != tc.wantAdd {
				t.Errorf("add = %q, want %q", add, tc.wantAdd)
			}
			if !reflect.DeepEqual(remove, tc.wantRemove) {
				t.Errorf("remove = %v, want %v", remove, tc.wantRemove)
			}
		})
	}
}

func seed(fake *googlefake.Drive, n int) {
	for i := 0; i < n; i++ {
		fake.Add(googlefake.DriveFile{
			ID:       fmt.Sprintf("img%d", i),
			Name:     fmt.Sprintf("img%d.png", i),
			MimeType: "image/png",
			Parents:  []string{"src"},
			Content:  []byte(fmt.Sprintf("bytes-%d", i)),
		})
	}
}

func TestListBoundedAcrossPages(t *testing.T) {
	fake := googlefake.NewDrive(t)
	fake.PageLimit = 2
	seed(fake, 7)
	fake.Add(googlefake.DriveFile{ID: "doc", Name: "notes.txt", MimeType: "text/plain", Parents: []string{"src"}})
	fake.Add(googlefake.DriveFile{ID: "elsewhere", Name: "x.png", MimeType: "image/png", Parents: []string{"other"}})
	fake.Add(googlefake.DriveFile{ID: "bin", Name: "old.png", MimeType: "image/png", Parents: []string{"src"}, Trashed: true})
	d := newDrive(t, fake)

	for _, max := range []int{1, 5, 7, 10} {
		got, err := d.List(context.Background(), "src", max)
		if err != nil {
			t.Fatalf("List(%d): %v", max, err)
		}
		want := min(7, max)
		if len(got) != want {
			t.Fatalf("List(%d) returned %d entries, want %d", max, len(got), want)
		}
		for i, e := range got {
			if e.ID != fmt.Sprintf("img%d", i) {
				t.Errorf("List(%d)[%d] = %s, listing order not kept", max, i, e.ID)
			}
			if e.MimeType != "image/png" {
				t.Errorf("unexpected mime %q", e.MimeType)
			}
		}
	}
}

func TestListEmptyFolder(t *testing.T) {
	d := newDrive(t, googlefake.NewDrive(t))
	got, err := d.List(context.Background(), "src", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %v", got)
	}
}

func TestListFailure(t *testing.T) {
	fake := googlefake.NewDrive(t)
	fake.Fail = func(op, _ string) bool { return op == "list" }
	d := newDrive(t, fake)
	_, err := d.List(context.Background(), "src", 10)
	if !errors.Is(err, internalerr.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable, got %v", err)
	}
}

func TestFetch(t *testing.T) {
	fake := googlefake.NewDrive(t)
	seed(fake, 1)
	d := newDrive(t, fake)
	got, err := d.Fetch(context.Background(), "img0")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "bytes-0" {
		t.Fatalf("got %q", got)
	}
	if _, err := d.Fetch(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRelocateLeavesOnlyDestination(t *testing.T) {
	fake := googlefake.NewDrive(t)
	fake.Add(googlefake.DriveFile{ID: "a", MimeType: "image/png", Parents: []string{"src", "shared"}})
	fake.Add(googlefake.DriveFile{ID: "b", MimeType: "image/png", Parents: []string{"done"}})
	d := newDrive(t, fake)

	for _, id := range []string{"a", "b"} {
		if err := d.Relocate(context.Background(), id, "done"); err != nil {
			t.Fatalf("Relocate(%s): %v", id, err)
		}
		f, _ := fake.File(id)
		if !reflect.DeepEqual(f.Parents, []string{"done"}) {
			t.Errorf("%s parents = %v, want [done]", id, f.Parents)
		}
	}
	if got := fake.Images("src"); len(got) != 0 {
		t.Errorf("source folder still lists %v", got)
	}
}

func TestRelocateFailure(t *testing.T) {
	fake := googlefake.NewDrive(t)
	seed(fake, 1)
	fake.Fail = func(op, _ string) bool { return op == "update" }
	d := newDrive(t, fake)
	err := d.Relocate(context.Background(), "img0", "done")
	if !errors.Is(err, internalerr.ErrRelocation) {
		t.Fatalf("expected relocation error, got %v", err)
	}
	f, _ := fake.File("img0")
	if !reflect.DeepEqual(f.Parents, []string{"src"}) {
		t.Fatalf("parents changed on failure: %v", f.Parents)
	}
}

func TestPublish(t *testing.T) {
	fake := googlefake.NewDrive(t)
	seed(fake, 1)
	d := newDrive(t, fake)
	link, err := d.Publish(context.Background(), "img0")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if link != googlefake.ViewLink("img0") {
		t.Fatalf("link = %q", link)
	}
	if f, _ := fake.File("img0"); !f.Public {
		t.Fatal("file was not shared")
	}
}

func TestPublishFailure(t *testing.T) {
	fake := googlefake.NewDrive(t)
	seed(fake, 1)
	fake.Fail = func(op, _ string) bool { return op == "permission" }
	d := newDrive(t, fake)
	if _, err := d.Publish(context.Background(), "img0"); !errors.Is(err, internalerr.ErrPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestMarkerLedger(t *testing.T) {
	fake := googlefake.NewDrive(t)
	seed(fake, 2)
	ledger := NewMarkerLedger(newDrive(t, fake))
	ctx := context.Background()

	if _, ok, err := ledger.Appended(ctx, "img0"); err != nil || ok {
		t.Fatalf("fresh file: ok=%v err=%v", ok, err)
	}
	if err := ledger.MarkAppended(ctx, "img0", "doc-1"); err != nil {
		t.Fatalf("MarkAppended: %v", err)
	}
	docID, ok, err := ledger.Appended(ctx, "img0")
	if err != nil || !ok || docID != "doc-1" {
		t.Fatalf("Appended = %q %v %v", docID, ok, err)
	}
	if _, ok, _ := ledger.Appended(ctx, "img1"); ok {
		t.Fatal("marker leaked to another file")
	}
	if _, _, err := ledger.Appended(ctx, "missing"); !errors.Is(err, internalerr.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
}

func TestMarkerFromListing(t *testing.T) {
	fake := googlefake.NewDrive(t)
	seed(fake, 2)
	d := newDrive(t, fake)
	ledger := NewMarkerLedger(d)
	ctx := context.Background()
	if err := ledger.MarkAppended(ctx, "img1", "doc-1"); err != nil {
		t.Fatal(err)
	}

	fake.Fail = func(op, _ string) bool { return op == "get" }
	entries, err := d.List(ctx, "src", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := map[string]string{}
	for _, e := range entries {
		if docID, ok := ledger.FromListing(e); ok {
			got[e.ID] = docID
		}
	}
	if len(got) != 1 || got["img1"] != "doc-1" {
		t.Fatalf("markers from listing = %v", got)
	}
}
