package fx

import (
	"github.com/ousepachn/insta-media-sync/internal/repositories/runlog"
	"go.uber.org/fx"
)

var Module = fx.Options(
	runlog.Module,
)
