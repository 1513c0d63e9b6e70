package main

import (
	"io"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

// newLogger builds the process logger. Unknown formats fall back to console.
func newLogger(settings LogEnv, out io.Writer) glog.Logger {
	if out == nil {
		out = os.Stderr
	}
	opts := []glog.Option{
		glog.WithName("crmconnect"),
		glog.WithLevel(settings.Level),
		glog.WithWriter(out),
	}
	switch settings.Format {
	case "json":
		opts = append(opts, glog.WithLoggerTypeJSON())
	case "pretty":
		opts = append(opts, glog.WithLoggerTypePretty())
	default:
		opts = append(opts, glog.WithLoggerTypeConsole())
	}
	return glog.NewLogger(opts...)
}
