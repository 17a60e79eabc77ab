/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. Logs default to stderr so that
command output forwarded from containers stays clean on stdout.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

Component loggers:

	mountLog := log.WithComponent("mount")
	mountLog.Debug().Str("target", target).Msg("mounting squashfs")

	sessLog := log.WithSession(sessionID)
	sessLog.Info().Msg("session opened")

Structured logging:

	log.Logger.Error().
		Err(err).
		Str("device", dev).
		Msg("loop device detach failed")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields (component, container,
    session_id)
  - Automatically includes context in all logs

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across the codebase
*/
package log
