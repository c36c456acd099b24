package bootstrap

import (
	"github.com/kaspanet/latticeboot/logger"
	"github.com/kaspanet/latticeboot/util/panics"
)

var log, _ = logger.Get(logger.SubsystemTags.ABTS)
var spawn = panics.GoroutineWrapperFunc(log)
