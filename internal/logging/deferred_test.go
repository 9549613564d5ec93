package logging

import (
	"bytes"
	"testing"
)

func TestDeferred(t *testing.T) {
	var out bytes.Buffer
	d := NewDeferred(&out)

	d.Write([]byte("one\n"))
	d.Write([]byte("two\n"))
	if out.Len() != 0 {
		t.Fatalf("out = %q before Flush, want empty", out.String())
	}

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := out.String(); got != "one\ntwo\n" {
		t.Errorf("out = %q after Flush", got)
	}

	d.Write([]byte("three\n"))
	if got := out.String(); got != "one\ntwo\nthree\n" {
		t.Errorf("out = %q after post-flush write", got)
	}
	if err := d.Flush(); err != nil {
		t.Errorf("second Flush() error = %v", err)
	}
}

func TestNew_Deferred(t *testing.T) {
	var out bytes.Buffer
	d := NewDeferred(&out)
	logger, err := New(Options{Writer: d})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("buffered")
	if out.Len() != 0 {
		t.Fatalf("log written before Flush: %q", out.String())
	}
	d.Flush()
	if !bytes.Contains(out.Bytes(), []byte("buffered")) {
		t.Errorf("out = %q, want buffered line", out.String())
	}
}
