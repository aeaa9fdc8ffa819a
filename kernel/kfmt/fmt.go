// Package kfmt implements the formatted console output and the fatal halt
// path used by the memory subsystem.
package kfmt

import (
	"io"
	"strconv"

	"kmem/kernel/sync"
)

// maxPadLen caps the width that can be requested by a formatting verb.
const maxPadLen = 64

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")

	// earlyPrintBuffer is a ring buffer that stores Printf output until an
	// output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// sinkLock serializes writes so that lines emitted by concurrent
	// callers do not interleave.
	sinkLock sync.Spinlock
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	sinkLock.Acquire()
	defer sinkLock.Release()
	return outputSink
}

// Printf writes a formatted message to the active output sink.
//
// It supports the following subset of the fmt verbs:
//
//	%s  string or byte slice
//	%d  integer, base 10
//	%o  integer, base 8
//	%x  integer, base 16 with lower-case letters
//	%t  boolean
//
// A decimal width may precede the verb. Strings and base-10 integers are
// left-padded with spaces; base-8 and base-16 integers with zeroes.
func Printf(format string, args ...interface{}) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	out := outputSink
	if out == nil {
		out = &earlyPrintBuffer
	}
	Fprintf(out, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. The whole message is assembled before it is handed
// to w with a single Write call.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	w.Write(appendf(make([]byte, 0, len(format)+16), format, args))
}

func appendf(buf []byte, format string, args []interface{}) []byte {
	var nextArg int

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			buf = append(buf, format[i])
			continue
		}

		padLen := 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = padLen*10 + int(format[i]-'0')
		}
		if padLen > maxPadLen {
			padLen = maxPadLen
		}

		if i == len(format) {
			buf = append(buf, errNoVerb...)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			buf = append(buf, '%')
			continue
		case 'd', 'o', 'x', 's', 't':
		default:
			buf = append(buf, errNoVerb...)
			continue
		}

		if nextArg >= len(args) {
			buf = append(buf, errMissingArg...)
			continue
		}

		arg := args[nextArg]
		nextArg++

		switch verb {
		case 'd':
			buf = appendInt(buf, arg, 10, padLen)
		case 'o':
			buf = appendInt(buf, arg, 8, padLen)
		case 'x':
			buf = appendInt(buf, arg, 16, padLen)
		case 's':
			buf = appendString(buf, arg, padLen)
		case 't':
			buf = appendBool(buf, arg)
		}
	}

	for ; nextArg < len(args); nextArg++ {
		buf = append(buf, errExtraArg...)
	}

	return buf
}

func appendBool(buf []byte, v interface{}) []byte {
	b, ok := v.(bool)
	if !ok {
		return append(buf, errWrongArgType...)
	}
	return strconv.AppendBool(buf, b)
}

func appendString(buf []byte, v interface{}, padLen int) []byte {
	switch s := v.(type) {
	case string:
		buf = appendRepeat(buf, ' ', padLen-len(s))
		return append(buf, s...)
	case []byte:
		buf = appendRepeat(buf, ' ', padLen-len(s))
		return append(buf, s...)
	case interface{ String() string }:
		str := s.String()
		buf = appendRepeat(buf, ' ', padLen-len(str))
		return append(buf, str...)
	default:
		return append(buf, errWrongArgType...)
	}
}

func appendRepeat(buf []byte, ch byte, count int) []byte {
	for ; count > 0; count-- {
		buf = append(buf, ch)
	}
	return buf
}

// appendInt formats v in the requested base. All built-in signed and unsigned
// integer types are supported.
func appendInt(buf []byte, v interface{}, base, padLen int) []byte {
	var (
		uval     uint64
		negative bool
		digits   [64]byte
	)

	switch n := v.(type) {
	case uint8:
		uval = uint64(n)
	case uint16:
		uval = uint64(n)
	case uint32:
		uval = uint64(n)
	case uint64:
		uval = n
	case uint:
		uval = uint64(n)
	case uintptr:
		uval = uint64(n)
	case int8:
		uval, negative = abs(int64(n))
	case int16:
		uval, negative = abs(int64(n))
	case int32:
		uval, negative = abs(int64(n))
	case int64:
		uval, negative = abs(n)
	case int:
		uval, negative = abs(int64(n))
	default:
		return append(buf, errWrongArgType...)
	}

	num := strconv.AppendUint(digits[:0], uval, base)
	width := len(num)
	if negative {
		width++
	}

	if base == 10 {
		buf = appendRepeat(buf, ' ', padLen-width)
		if negative {
			buf = append(buf, '-')
		}
	} else {
		if negative {
			buf = append(buf, '-')
		}
		buf = appendRepeat(buf, '0', padLen-width)
	}

	return append(buf, num...)
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}
