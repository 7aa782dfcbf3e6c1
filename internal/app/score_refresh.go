package app

import (
	"context"
	"log"
	"time"
)

const (
	defaultScoreRefreshInterval = time.Hour
	defaultScoreRefreshMaxAge   = 24 * time.Hour
	scoreRefreshBatchLimit      = 100
)

// ScoreRefresher periodically recalculates credit profiles that have not
// been updated recently, so scores keep tracking ledger activity even for
// users who never hit the recalculate endpoint.
type ScoreRefresher struct {
	credit   *CreditEngine
	interval time.Duration
	maxAge   time.Duration
}

func NewScoreRefresher(credit *CreditEngine, interval, maxAge time.Duration) *ScoreRefresher {
	if interval <= 0 {
		interval = defaultScoreRefreshInterval
	}
	if maxAge <= 0 {
		maxAge = defaultScoreRefreshMaxAge
	}
	return &ScoreRefresher{credit: credit, interval: interval, maxAge: maxAge}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *ScoreRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("level=info component=score_refresh msg=\"refresh loop started\" interval=%s max_age=%s", r.interval, r.maxAge)
	for {
		select {
		case <-ctx.Done():
			log.Printf("level=info component=score_refresh msg=\"refresh loop stopped\"")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *ScoreRefresher) sweep(ctx context.Context) {
	cutoff := r.credit.now().UTC().Add(-r.maxAge)
	userIDs, err := r.credit.repo.ListStaleCreditProfiles(ctx, cutoff, scoreRefreshBatchLimit)
	if err != nil {
		log.Printf("level=warn component=score_refresh msg=\"stale profile listing failed\" err=%v", err)
		return
	}
	if len(userIDs) == 0 {
		return
	}

	refreshed := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.credit.Recalculate(ctx, userID); err != nil {
			log.Printf("level=warn component=score_refresh msg=\"recalculation failed\" user_id=%s err=%v", userID, err)
			continue
		}
		refreshed++
	}
	log.Printf("level=info component=score_refresh msg=\"sweep complete\" stale=%d refreshed=%d", len(userIDs), refreshed)
}
