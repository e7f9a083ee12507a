package logsvc

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/presence/core"
)

// ZapLogger is the default core.Logger.
type ZapLogger struct {
	z *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a JSON logger in PROD and a console logger otherwise.
func NewZapLogger(conf *core.Config) (*ZapLogger, error) {
	config := zap.NewProductionConfig()
	if conf.Debug {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.InitialFields = map[string]interface{}{"app": conf.AppName, "env": conf.Env}
	z, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{z: z}, nil
}

func NewNop() *ZapLogger {
	return &ZapLogger{z: zap.NewNop()}
}

// Zap exposes the underlying logger.
func (l *ZapLogger) Zap() *zap.Logger { return l.z }

func (l *ZapLogger) Sync() error { return l.z.Sync() }

// fields turns logger args into zap fields.
// expected fmt: error, map[string]interface{}, or anything printable
func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			flds = append(flds, zap.Error(v))
		case map[string]interface{}:
			for key, val := range v {
				flds = append(flds, zap.Any(key, val))
			}
		case fmt.Stringer:
			flds = append(flds, zap.Stringer(fmt.Sprintf("arg%d", i), v))
		default:
			flds = append(flds, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return flds
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.z.Debug(msg, fields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.z.Info(msg, fields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.z.Warn(msg, fields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.z.Error(msg, fields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.z.Fatal(msg, fields(args)...) }
