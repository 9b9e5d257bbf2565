// Package protocol decodes the line-oriented output of worker processes.
//
// Every worker speaks the same small grammar:
//
//	PROGRESS: <current>/<total>    progress sentinel (1 <= current <= total)
//	{ ...json... }                 terminal result; the last such stdout line wins
//	anything else                  free text (stdout = log, stderr = error)
//
// Decode classifies a single line. TrailingJSON collects the terminal result
// across a whole run and reports a protocol failure when it is absent or
// invalid, regardless of the exit code.
package protocol
