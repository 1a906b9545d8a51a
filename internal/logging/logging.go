// Package logging configures logrus and provides a storage extension that
// logs every mutation.
package logging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/extend"
)

// Setup configures the standard logger.
func Setup(level, format string) {
	Configure(logrus.StandardLogger(), level, format)
}

// Configure sets the formatter and level of logger. format is json or
// text; level is debug, info, warn or error and defaults to info.
func Configure(logger *logrus.Logger, level, format string) {
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

// Extend wraps m so that every write, removal, clear, copy and move is
// logged. Failures are logged at warn level.
func Extend[T any](m storage.Module[T], logger *logrus.Logger) *extend.Store[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	done := func(op string, fields logrus.Fields, start time.Time, err error) error {
		entry := logger.WithFields(fields).WithFields(logrus.Fields{
			"op":       op,
			"duration": time.Since(start),
		})
		if err != nil {
			entry.WithError(err).Warn("Storage operation failed")
		} else {
			entry.Debug("Storage operation")
		}
		return err
	}

	return extend.Extend(m, extend.Trait[T]{
		SetItem: func(ctx context.Context, orig storage.Module[T], key storage.Key, value T, opts ...storage.SetOption) error {
			start := time.Now()
			fields := logrus.Fields{"key": key.String()}
			if o := storage.ApplySetOptions(opts...); o.ExpireIn > 0 {
				fields["expire_in"] = o.ExpireIn
			}
			return done("set", fields, start, orig.SetItem(ctx, key, value, opts...))
		},
		RemoveItem: func(ctx context.Context, orig storage.Module[T], key storage.Key) error {
			start := time.Now()
			return done("remove", logrus.Fields{"key": key.String()}, start, orig.RemoveItem(ctx, key))
		},
		ClearItems: func(ctx context.Context, orig storage.Module[T], prefix storage.Key) error {
			start := time.Now()
			return done("clear", logrus.Fields{"prefix": prefix.String()}, start, orig.ClearItems(ctx, prefix))
		},
		CopyItems: func(ctx context.Context, orig, self storage.Module[T], from, to storage.Key) error {
			start := time.Now()
			fields := logrus.Fields{"from": from.String(), "to": to.String()}
			return done("copy", fields, start, storage.CopyItems(ctx, from, to, orig, orig))
		},
		MoveItems: func(ctx context.Context, orig, self storage.Module[T], from, to storage.Key) error {
			start := time.Now()
			fields := logrus.Fields{"from": from.String(), "to": to.String()}
			return done("move", fields, start, storage.MoveItems(ctx, from, to, orig, orig))
		},
	})
}
