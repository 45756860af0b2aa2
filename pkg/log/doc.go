/*
Package log provides kannich's process-wide logger and secret masker.

It wraps zerolog for structured, leveled output (debug/info/warn/error)
and wraps the logger's writer in a masking decorator: every line written
to the sink is scanned against a concurrent-safe set of registered
secrets and has each occurrence replaced with a fixed placeholder before
it reaches the terminal. Masking happens at the writer, not at the call
site, so library and tool log lines are covered the same as kannich's
own — nothing can forget to call a redaction helper.

	Logger.Info().Msg(line)
	        │
	        ▼
	maskingWriter.Write([]byte(line))
	        │  for each secret in the registered set:
	        │    replace every occurrence with "**secret**"
	        ▼
	   underlying io.Writer (stdout / console writer)

Secret registration (Register) must happen before any log line carrying
that secret is emitted — callers that set a secret as a side effect of
configuring a tool (e.g. a proxy password written to a system property)
must register it first. Shutdown clears the set.
*/
package log
