package oauth

import (
	"context"
	"time"

	"github.com/chao7150/wpmastodon/internal/store"
)

// Sweep deletes codes and tokens that expired more than a day ago, apps
// older than a day that nothing live refers to, and expired transients.
func (p *Provider) Sweep(ctx context.Context) (store.SweepResult, error) {
	now := p.store.Now()
	res, err := p.store.SweepExpired(ctx, now.Add(-sweepGrace).Unix(), now.Add(-sweepGrace))
	if err != nil {
		return res, err
	}
	if _, err := p.store.DeleteExpiredOptions(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (p *Provider) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := p.Sweep(ctx)
			if err != nil {
				p.logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			p.logger.Info().
				Int64("codes", res.Codes).
				Int64("tokens", res.Tokens).
				Int64("apps", res.Apps).
				Msg("swept expired oauth records")
		}
	}
}
