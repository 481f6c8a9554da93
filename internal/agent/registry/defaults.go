package registry

import (
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
)

// NewDefaultRegistry builds a registry with the full wrapper catalog in its
// fixed order. When no preferred list was supplied, claude leads it so the
// preferred-agents index selects the designated default wrapper.
func NewDefaultRegistry(log *logger.Logger, opts ...Option) *Registry {
	r := NewRegistry(log, opts...)
	if len(r.preferred) == 0 {
		r.preferred = []string{"claude"}
	}
	for _, w := range wrappers.DefaultWrappers() {
		if err := r.Register(w); err != nil {
			log.Warn("skipping wrapper registration",
				zap.String("id", w.ID()), zap.Error(err))
		}
	}
	return r
}
