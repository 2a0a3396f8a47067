package app

import (
	"context"
	"log"
	"time"
)

// Heartbeat keeps the watched stream counted as viewed. It always targets the
// latest NowWatched value and fires right away when the selection changes.
// A selection missing from the latest ranking gets no heartbeat until the
// scheduler picks again.
type Heartbeat struct {
	api      DropsAPI
	state    *State
	ranking  *Broadcast[[]PriorityEntry]
	interval time.Duration
	policy   RetryPolicy
	logger   *log.Logger
}

func NewHeartbeat(api DropsAPI, state *State, ranking *Broadcast[[]PriorityEntry], interval time.Duration, policy RetryPolicy) *Heartbeat {
	return &Heartbeat{
		api:      api,
		state:    state,
		ranking:  ranking,
		interval: interval,
		policy:   policy.WithMaxAttempts(3),
		logger:   newLogger("heartbeat"),
	}
}

func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	feed := h.state.WatchFeed()
	nw, version := feed.Load()

	for {
		if target := h.target(nw); !target.IsZero() {
			h.send(ctx, target)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-feed.Changed(version):
		case <-ticker.C:
		}
		nw, version = feed.Load()
	}
}

func (h *Heartbeat) target(nw NowWatched) NowWatched {
	ranking, version := h.ranking.Load()
	if nw.IsZero() || version == 0 {
		return nw
	}
	for _, entry := range ranking {
		if entry.Channel.ID == nw.ChannelID {
			return nw
		}
	}
	return NowWatched{}
}

func (h *Heartbeat) send(ctx context.Context, nw NowWatched) {
	err := RetryDo(ctx, h.policy, h.logger, "watch heartbeat", func(ctx context.Context) error {
		return structural(h.api.SendWatchHeartbeat(ctx, nw.ChannelLogin, nw.StreamID, nw.ChannelID))
	})
	if err != nil && ctx.Err() == nil {
		h.logger.Printf("Heartbeat for %s failed: %v", nw.ChannelLogin, err)
	}
}
