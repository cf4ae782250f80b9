package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
)

// RunHealthCheck triggers a fresh knowledge-graph scan. Returns
// health.ErrRunInProgress when a scan is already running.
func (u *UseCases) RunHealthCheck(ctx context.Context) (*model.HealthReport, error) {
	if u.healthEngine == nil {
		return nil, goerr.New("health engine is not configured")
	}
	return u.healthEngine.Run(ctx)
}

// HealthReport returns the latest report, or nil if no scan has run yet
func (u *UseCases) HealthReport() *model.HealthReport {
	if u.healthEngine == nil {
		return nil
	}
	return u.healthEngine.Report()
}
