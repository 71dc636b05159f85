package main

import (
	"github.com/mattn/go-colorable"
	"github.com/orandin/lumberjackrus"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func newLogger(cfg *Config) (*logrus.Logger, error) {
	logger := logrus.New()
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.SetFormatter(&logrus.TextFormatter{ForceColors: true})
	logger.SetOutput(colorable.NewColorableStderr())
	if cfg.LogFile == "" {
		return logger, nil
	}
	hook, err := lumberjackrus.NewHook(
		&lumberjackrus.LogFile{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 1,
			MaxAge:     1,
			Compress:   true,
		},
		logrus.InfoLevel,
		&logrus.JSONFormatter{},
		&lumberjackrus.LogFileOpts{},
	)
	if err != nil {
		return nil, err
	}
	logger.AddHook(hook)
	return logger, nil
}
