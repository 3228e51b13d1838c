package launcher

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// sentryLevels are the levels shipped to Sentry.
var sentryLevels = []logrus.Level{
	logrus.PanicLevel,
	logrus.FatalLevel,
	logrus.ErrorLevel,
}

// setupLogging routes the records of every module logger through logrus.
func setupLogging(cfg LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Out = os.Stderr
	logger.Level = logrus.TraceLevel

	switch cfg.Format {
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	case "text", "":
		logger.Formatter = &logrus.TextFormatter{
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
			FullTimestamp: true,
		}
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, sentryLevels)
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		hook.StacktraceConfiguration.Enable = true
		logger.AddHook(hook)
	}

	handler := log.LvlFilterHandler(log.Lvl(cfg.Verbosity), logrusHandler(logger))
	log.Root().SetHandler(handler)
	return logger, nil
}

// logrusHandler converts log records to logrus entries. The key/value
// context of a record becomes the fields of the entry.
func logrusHandler(logger *logrus.Logger) log.Handler {
	return log.FuncHandler(func(r *log.Record) error {
		fields := make(logrus.Fields, len(r.Ctx)/2)
		for i := 0; i+1 < len(r.Ctx); i += 2 {
			key, ok := r.Ctx[i].(string)
			if !ok {
				key = fmt.Sprint(r.Ctx[i])
			}
			fields[key] = formatValue(r.Ctx[i+1])
		}
		entry := logger.WithFields(fields).WithTime(r.Time)
		switch r.Lvl {
		case log.LvlCrit:
			// log.Crit exits the process itself
			entry.Error(r.Msg)
		case log.LvlError:
			entry.Error(r.Msg)
		case log.LvlWarn:
			entry.Warn(r.Msg)
		case log.LvlInfo:
			entry.Info(r.Msg)
		case log.LvlDebug:
			entry.Debug(r.Msg)
		default:
			entry.Trace(r.Msg)
		}
		return nil
	})
}

func formatValue(v interface{}) interface{} {
	switch v := v.(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}
