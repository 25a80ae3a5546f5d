package metadir

import (
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

func TestInsertAndExactLookup(t *testing.T) {
	d := New()
	d.Insert("notes", 0, PayloadString, 100, 40)
	d.Insert("notes", 1, PayloadString, 200, 20)
	d.Insert("author", 0, PayloadString, 50, 10)

	off, length, typ, ok := d.ByNameAndID("notes", 1)
	if !ok {
		t.Fatal("expected to find notes/1")
	}
	if off != 200 || length != 20 || typ != PayloadString {
		t.Errorf("got (%d,%d,%d), want (200,20,%d)", off, length, typ, PayloadString)
	}

	if _, _, _, ok := d.ByNameAndID("notes", 5); ok {
		t.Error("expected notes/5 to be absent")
	}
}

func TestInsertReplacesAndReturnsOldLocation(t *testing.T) {
	d := New()
	d.Insert("author", 0, PayloadString, 50, 10)
	replaced := d.Insert("author", 0, PayloadString, 900, 30)
	if replaced == nil {
		t.Fatal("expected replaced entry info")
	}
	if replaced.Offset != 50 || replaced.Length != 10 {
		t.Errorf("replaced = %+v, want offset 50 length 10", replaced)
	}
	off, length, _, ok := d.ByNameAndID("author", 0)
	if !ok || off != 900 || length != 30 {
		t.Errorf("after replace: (%d,%d,%v), want (900,30,true)", off, length, ok)
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (replace should not grow the directory)", d.Len())
	}
}

func TestByNameExactAndWildcard(t *testing.T) {
	d := New()
	d.Insert("elevation_notes", 0, PayloadString, 10, 1)
	d.Insert("elevation_notes", 1, PayloadString, 20, 1)
	d.Insert("provenance", 0, PayloadString, 30, 1)

	got := d.ByName("elevation_notes")
	if len(got) != 2 {
		t.Fatalf("ByName(elevation_notes) = %d results, want 2", len(got))
	}
	if got[0].RecordID != 0 || got[1].RecordID != 1 {
		t.Errorf("results not in recordID order: %+v", got)
	}

	all := d.ByName("*")
	if len(all) != 3 {
		t.Fatalf("ByName(*) = %d results, want 3", len(all))
	}

	glob := d.ByName("elevation_*")
	if len(glob) != 2 {
		t.Fatalf("ByName(elevation_*) = %d results, want 2", len(glob))
	}
}

func TestRemove(t *testing.T) {
	d := New()
	d.Insert("a", 0, PayloadString, 10, 4)
	info, ok := d.Remove("a", 0)
	if !ok {
		t.Fatal("expected Remove to find the entry")
	}
	if info.Offset != 10 || info.Length != 4 {
		t.Errorf("Remove info = %+v, want offset 10 length 4", info)
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d, want 0", d.Len())
	}
	if _, ok := d.Remove("a", 0); ok {
		t.Error("second Remove should report not found")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	d := New()
	d.Insert("zzz", 2, PayloadDouble, 500, 8)
	d.Insert("aaa", 0, PayloadInt, 8, 4)
	d.Insert("aaa", 1, PayloadInt, 16, 4)

	buf := gio.NewBuffer(0)
	if err := d.WriteTo(buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := ReadFrom(gio.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", got.Len())
	}
	off, length, typ, ok := got.ByNameAndID("zzz", 2)
	if !ok || off != 500 || length != 8 || typ != PayloadDouble {
		t.Errorf("zzz/2 = (%d,%d,%d,%v), want (500,8,%d,true)", off, length, typ, ok, PayloadDouble)
	}
}
