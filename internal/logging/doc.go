// Package logging provides module-scoped slog loggers.
//
// Every logger returned by [GetLogger] carries a module attribute and its own
// [slog.LevelVar], so levels can be overridden per module in the
// configuration file and changed at runtime through [SetModuleLevel]:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	hotswap = "debug"
//	watch = "warn"
//
// Records are routed to stdout (text or JSON) when stdout is connected, to
// the systemd journal when journald is reachable, and always to an in-memory
// [RingBuffer] whose contents back the /api/logs endpoint.
//
// Journal entries are tagged with SYSLOG_IDENTIFIER=castnode:
//
//	journalctl -t castnode MODULE=hotswap
package logging
