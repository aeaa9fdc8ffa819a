package kfmt

import (
	"bytes"
	"strings"
	"testing"
)

type stringerType struct{}

func (stringerType) String() string { return "stringer" }

func TestPrintf(t *testing.T) {
	defer SetOutputSink(nil)

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		// bool values
		{
			func() { printfn("%t", true) },
			"true",
		},
		{
			func() { printfn("%41t", false) },
			"false",
		},
		// strings and byte slices
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("%s arg", stringerType{}) },
			"stringer arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("'%4s' arg longer than padding", "ABCDE") },
			"'ABCDE' arg longer than padding",
		},
		// uints
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		{
			func() { printfn("uint arg with padding: '%10d'", uint64(123)) },
			"uint arg with padding: '       123'",
		},
		{
			func() { printfn("uint arg with padding: '%4o'", uint64(0777)) },
			"uint arg with padding: '0777'",
		},
		{
			func() { printfn("uint arg with padding: '0x%10x'", uint64(0xbadf00d)) },
			"uint arg with padding: '0x000badf00d'",
		},
		{
			func() { printfn("uint arg longer than padding: '0x%5x'", int64(0xbadf00d)) },
			"uint arg longer than padding: '0xbadf00d'",
		},
		{
			func() { printfn("uintptr arg: 0x%x", uintptr(0x80000000)) },
			"uintptr arg: 0x80000000",
		},
		// ints
		{
			func() { printfn("int arg: %d", int8(-10)) },
			"int arg: -10",
		},
		{
			func() { printfn("int arg with padding: '%6d'", int32(-42)) },
			"int arg with padding: '   -42'",
		},
		{
			func() { printfn("int arg with padding: '%6x'", -0xff) },
			"int arg with padding: '-000ff'",
		},
		{
			func() { printfn("int arg: %d", 0) },
			"int arg: 0",
		},
		// errors
		{
			func() { printfn("%%") },
			"%",
		},
		{
			func() { printfn("missing %d") },
			"missing (MISSING)",
		},
		{
			func() { printfn("%d", "not a number") },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%t", 1) },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%s", 1) },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("no verb %") },
			"no verb %!(NOVERB)",
		},
		{
			func() { printfn("bad verb %q", 1) },
			"bad verb %!(NOVERB)%!(EXTRA)",
		},
		{
			func() { printfn("extra", 1, 2) },
			"extra%!(EXTRA)%!(EXTRA)",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer SetOutputSink(nil)
	SetOutputSink(nil)

	exp := "buffered before the sink was attached\n"
	Printf("buffered before the %s was attached\n", "sink")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); !strings.HasSuffix(got, exp) {
		t.Fatalf("expected flushed output to end with %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the attached sink")
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "[%s] managing %d pages", "kalloc", 3)

	if exp, got := "[kalloc] managing 3 pages", buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}
