package log

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level      string `help:"log level, one of [debug|info|warn|error]" devDefault:"debug" default:"info"`
	File       string `help:"log file, empty for stderr only" default:""`
	MaxSize    int    `help:"max size of a log file in MB before rotation" default:"100"`
	MaxBackups int    `help:"rotated files to keep" default:"10"`
	MaxAge     int    `help:"days to keep rotated files" default:"30"`
	Compress   bool   `help:"gzip rotated files" default:"true"`
}

func NewLog(conf *Config) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.Set(conf.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if conf.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
			Compress:   conf.Compress,
		}))
	}
	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller())
}
