// Package cpu exposes the processor controls needed by the memory subsystem.
package cpu

import "os"

// haltExitCode is reported to the host when a hosted kernel halts.
const haltExitCode = 70

var exitFn = os.Exit

// Halt stops instruction execution. Calls to Halt never return. When the
// kernel runs hosted there is no processor to stop, so the hosting process is
// terminated instead.
func Halt() {
	exitFn(haltExitCode)
}
