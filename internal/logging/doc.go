// Package logging provides structured logging for council sessions.
//
// It wraps log/slog to write JSON lines to {dir}/debug.log, with context
// attributes that make a multi-member session readable after the fact, and
// keeps a plain-text transcript per council member.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(dir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("session started", "members", 3)
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	l := logger.WithSession("3f2a9c1e").WithMember("openai/gpt-5").WithPhase("stage2")
//	l.Info("ranking parsed", "labels", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"ranking parsed","session_id":"3f2a9c1e","member":"openai/gpt-5","phase":"stage2","labels":3}
//
// # Transcripts
//
// [Logger.Transcript] appends each prompt and answer for one member to
// {dir}/members/<member>.log. A logger without a directory has no
// transcripts.
//
// # Log Rotation
//
// debug.log is rotated by size. Rotated files are named debug.log.1,
// debug.log.2, ..., where .1 is the most recent:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	})
//
// # Reading Logs
//
// [ReadEntries] loads debug.log and its backups in time order, and
// [Filter] narrows them down for "council logs":
//
//	entries, err := logging.ReadEntries(dir)
//	if err != nil {
//	    return err
//	}
//	warnings := logging.FilterEntries(entries, logging.Filter{Level: "WARN", SessionID: "3f2a9c1e"})
//	logging.WriteEntries(os.Stdout, warnings, "text")
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  dir: ""          # default: ~/.config/council/logs
//	  max_size_mb: 10
//	  max_backups: 3
//
// Use [NopLogger] in tests and wherever logging is disabled.
package logging
