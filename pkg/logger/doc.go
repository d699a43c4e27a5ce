// Package logger builds slog loggers for notifykit services and provides
// attribute helpers that keep key names consistent across the notification
// pipeline (event type, notification id, channel, job id and so on).
//
// New creates a *slog.Logger from functional options. The handler is a JSON or
// text handler wrapped by LogHandlerDecorator, which injects attributes pulled
// from context.Context on every record.
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "notifyd"),
//	    logger.WithContextValue("trace_id", traceKey{}),
//	)
//	log.LogAttrs(ctx, slog.LevelInfo, "notification created",
//	    logger.NotificationID(n.ID),
//	    logger.UserID(n.UserID),
//	    logger.EventType(string(n.Type)),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
