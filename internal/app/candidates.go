package app

import (
	"context"
	"log"
	"time"

	"github.com/antlu/drops-farmer/internal/twitch"
)

// CandidateManager tops up the candidate pool from each campaign's allow-list
// or, for open campaigns, from the game's live directory. It never removes.
type CandidateManager struct {
	api       DropsAPI
	state     *State
	maxTopics int
	interval  time.Duration
	policy    RetryPolicy
	logger    *log.Logger
}

func NewCandidateManager(api DropsAPI, state *State, maxTopics int, interval time.Duration, policy RetryPolicy) *CandidateManager {
	return &CandidateManager{
		api:       api,
		state:     state,
		maxTopics: maxTopics,
		interval:  interval,
		policy:    policy,
		logger:    newLogger("candidates"),
	}
}

func (m *CandidateManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if added := m.refresh(ctx); added > 0 {
			m.logger.Printf("Added %d channels, pool holds %d", added, m.state.PoolSize())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// refresh walks the campaigns in order, so earlier campaigns win when the
// pool is close to full.
func (m *CandidateManager) refresh(ctx context.Context) int {
	added := 0

	for _, campaign := range m.state.Campaigns() {
		if m.state.PoolSize() >= m.maxTopics {
			break
		}

		channels, err := m.resolve(ctx, campaign)
		if err != nil {
			if ctx.Err() != nil {
				return added
			}
			m.logger.Printf("Skipping campaign %s: %v", campaign.Name, err)
			continue
		}

		added += m.state.AddCandidates(channels, m.maxTopics)
	}

	return added
}

func (m *CandidateManager) resolve(ctx context.Context, campaign twitch.Campaign) ([]twitch.Channel, error) {
	if len(campaign.Allow) > 0 {
		m.state.SetAllowList(campaign.ID, campaign.Allow)
		return campaign.Allow, nil
	}

	slug := campaign.Game.Slug
	if slug == "" {
		var err error
		slug, err = Retry(ctx, m.policy, m.logger, "game slug", func(ctx context.Context) (string, error) {
			slug, err := m.api.GameSlug(ctx, campaign.Game.DisplayName)
			return slug, structural(err)
		})
		if err != nil {
			return nil, err
		}
	}

	channels, err := Retry(ctx, m.policy, m.logger, "game directory", func(ctx context.Context) ([]twitch.Channel, error) {
		channels, err := m.api.GameDirectory(ctx, slug, true)
		return channels, structural(err)
	})
	if err != nil {
		return nil, err
	}

	m.state.AddDirectory(campaign.ID, channels)
	return channels, nil
}
