package launcher

import (
	"fmt"
	"os"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// sentryLevels are forwarded to Sentry when a DSN is configured.
var sentryLevels = []logrus.Level{
	logrus.PanicLevel,
	logrus.FatalLevel,
	logrus.ErrorLevel,
}

// verbosityLevel maps the numeric verbosity onto logrus levels, clamping
// out-of-range values.
func verbosityLevel(v int) logrus.Level {
	if v < int(logrus.PanicLevel) {
		return logrus.PanicLevel
	}
	if v > int(logrus.TraceLevel) {
		return logrus.TraceLevel
	}
	return logrus.Level(v)
}

func newLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(verbosityLevel(cfg.Verbosity))

	switch cfg.Format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
			FullTimestamp: true,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, sentryLevels)
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		l.AddHook(hook)
	}
	return l, nil
}
