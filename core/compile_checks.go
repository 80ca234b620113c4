package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ConnectionService = (*Service)(nil)
	_ AttemptPruner     = (*MemoryAttemptStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
