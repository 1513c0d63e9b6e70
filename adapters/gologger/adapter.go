// Package gologger bridges glog loggers into the go-job and go-command
// logging contracts used by the purge worker and its cron scheduler.
package gologger

import (
	gocron "github.com/goliatone/go-command/cron"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ToCronLogger narrows a glog logger to the cron scheduler contract.
func ToCronLogger(logger glog.Logger) gocron.Logger {
	return glog.Ensure(logger)
}

// ResolveForJob resolves a named glog logger and returns it together with
// its go-job counterpart.
func ResolveForJob(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.Logger, job.Logger) {
	_, resolved := Resolve(name, provider, logger)
	resolved = glog.Ensure(resolved)
	return resolved, ToJobLogger(resolved)
}
