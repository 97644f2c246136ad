package native

import (
	"path/filepath"
	"testing"

	"modernc.org/libc"
)

func openTemp(t *testing.T) (*libc.TLS, DB) {
	t.Helper()
	tls := NewTLS()
	db, rc := Open(tls, filepath.Join(t.TempDir(), "native.db"), OpenReadWrite|OpenCreate)
	if rc != OK {
		t.Fatalf("Open rc = %d", rc)
	}
	t.Cleanup(func() {
		if rc := Close(tls, db); rc != OK {
			t.Errorf("Close rc = %d", rc)
		}
		tls.Close()
	})
	return tls, db
}

func TestUTF16RoundTrip(t *testing.T) {
	tls := NewTLS()
	defer tls.Close()

	for _, s := range []string{"", "plain", "naïve café", "a\x00b", "🙂 outside the BMP"} {
		p, n := UTF16(tls, s)
		if p == 0 {
			t.Fatalf("UTF16(%q) returned null", s)
		}
		if got := GoStringUTF16(p, n); got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
		Free(tls, p)
	}
}

func TestCStringAndGoBytes(t *testing.T) {
	tls := NewTLS()
	defer tls.Close()

	p := CString(tls, "hello")
	defer Free(tls, p)
	if got := GoString(p); got != "hello" {
		t.Errorf("GoString = %q", got)
	}
	if got := GoBytes(p, 3); string(got) != "hel" {
		t.Errorf("GoBytes = %q", got)
	}
	if got := GoBytes(0, 0); got == nil || len(got) != 0 {
		t.Errorf("GoBytes(0, 0) = %#v, want empty non-nil", got)
	}
}

func TestExecAbort(t *testing.T) {
	tls, db := openTemp(t)

	rc, msg := Exec(tls, db, `CREATE TABLE t(x); INSERT INTO t VALUES (1), (2), (3);`, nil)
	if rc != OK {
		t.Fatalf("Exec rc = %d (%s)", rc, msg)
	}

	var seen int
	rc, _ = Exec(tls, db, `SELECT x FROM t ORDER BY x`, func(values, columns []string) bool {
		seen++
		if columns[0] != "x" {
			t.Errorf("column = %q", columns[0])
		}
		return false
	})
	if !IsAbort(rc) {
		t.Errorf("rc = %d, want abort", rc)
	}
	if seen != 1 {
		t.Errorf("callback ran %d times, want 1", seen)
	}
	if n := PendingCallbacks(); n != 0 {
		t.Errorf("PendingCallbacks = %d after Exec", n)
	}
}

func TestExecNullBecomesEmpty(t *testing.T) {
	tls, db := openTemp(t)

	var got []string
	rc, msg := Exec(tls, db, `SELECT NULL, 'v'`, func(values, columns []string) bool {
		got = values
		return true
	})
	if rc != OK {
		t.Fatalf("Exec rc = %d (%s)", rc, msg)
	}
	if len(got) != 2 || got[0] != "" || got[1] != "v" {
		t.Errorf("values = %#v", got)
	}
}

func TestExecErrorMessage(t *testing.T) {
	tls, db := openTemp(t)

	rc, msg := Exec(tls, db, `SELECT * FROM missing`, nil)
	if rc != Error {
		t.Fatalf("rc = %d, want %d", rc, Error)
	}
	if msg != "no such table: missing" {
		t.Errorf("msg = %q", msg)
	}
}

func TestPrepareTail(t *testing.T) {
	tls, db := openTemp(t)

	stmt, tail, rc := PrepareTail16(tls, db, "SELECT 1; SELECT 'é'")
	if rc != OK || stmt == 0 {
		t.Fatalf("PrepareTail16 rc = %d", rc)
	}
	defer Finalize(tls, stmt)
	if tail != " SELECT 'é'" {
		t.Errorf("tail = %q", tail)
	}

	empty, rest, rc := PrepareTail16(tls, db, "  -- nothing here")
	if rc != OK || empty != 0 || rest != "" {
		t.Errorf("comment-only prepare = %v, %q, %d", empty, rest, rc)
	}
}

func TestBindAndRead(t *testing.T) {
	tls, db := openTemp(t)

	stmt, rc := Prepare16(tls, db, "SELECT ?, ?, ?, ?")
	if rc != OK {
		t.Fatalf("Prepare16 rc = %d", rc)
	}
	defer Finalize(tls, stmt)

	BindText(tls, stmt, 1, "")
	BindBlob(tls, stmt, 2, nil)
	BindInt64(tls, stmt, 3, 1<<40)
	BindDouble(tls, stmt, 4, 2.5)

	if rc := Step(tls, stmt); rc != Row {
		t.Fatalf("Step rc = %d", rc)
	}
	if ColumnType(tls, stmt, 0) != 3 {
		t.Errorf("empty text should not bind as NULL")
	}
	if ColumnType(tls, stmt, 1) != 4 {
		t.Errorf("empty blob should not bind as NULL")
	}
	if b := ColumnBlob(tls, stmt, 1); b == nil || len(b) != 0 {
		t.Errorf("ColumnBlob = %#v", b)
	}
	if v := ColumnInt64(tls, stmt, 2); v != 1<<40 {
		t.Errorf("ColumnInt64 = %d", v)
	}
	if v := ColumnDouble(tls, stmt, 3); v != 2.5 {
		t.Errorf("ColumnDouble = %v", v)
	}
}
