package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/antlu/drops-farmer/internal/config"
	"github.com/antlu/drops-farmer/internal/twitch"
)

var errSessionDone = errors.New("all campaigns finished")

func newLogger(component string) *log.Logger {
	return log.New(log.Writer(), fmt.Sprintf("[%s] ", component), log.LstdFlags|log.Lmsgprefix)
}

// App runs farming sessions for one account.
type App struct {
	api      DropsAPI
	token    string
	tuning   config.Tuning
	claimed  *ClaimedDrops
	reporter *ProgressReporter
	chat     *twitch.IRCClient
	logger   *log.Logger
}

func New(api DropsAPI, account twitch.Account, tuning config.Tuning, claimed *ClaimedDrops, reporter *ProgressReporter) *App {
	a := &App{
		api:      api,
		token:    account.AccessToken,
		tuning:   tuning,
		claimed:  claimed,
		reporter: reporter,
		logger:   newLogger("farm"),
	}
	if tuning.ChatPresence {
		a.chat = twitch.NewIRCClient(account, newLogger("irc"))
	}
	return a
}

// Farm watches and claims every pending tier of the group's campaigns. It
// returns once nothing is left to claim or ctx is done.
func (a *App) Farm(ctx context.Context, group CampaignGroup) error {
	campaigns := a.prepareCampaigns(ctx, group.Campaigns)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(campaigns) == 0 {
		a.logger.Printf("Nothing left to farm for %s", group.Game.DisplayName)
		return nil
	}
	for _, campaign := range campaigns {
		a.logger.Printf("Farming %s: %d tiers pending", campaign.Name, len(campaign.Drops))
	}

	state := NewState(a.claimed)
	state.SetCampaigns(campaigns)

	policy := RetryPolicyFrom(a.tuning)
	candidates := NewCandidateManager(a.api, state, a.tuning.MaxTopics, a.tuning.CandidateInterval, policy)
	presence := NewPresence(state, a.token, a.tuning.PubSubURL, a.tuning.ReconnectDelay, a.tuning.PingInterval, policy)
	scheduler := NewScheduler(a.api, state, a.tuning.SchedulerInterval, policy)
	tracker := NewTracker(a.api, state, a.tuning.PollInterval, a.tuning.DeadlineTolerance, policy, a.reporter)
	heartbeat := NewHeartbeat(a.api, state, scheduler.Ranking(), a.tuning.HeartbeatInterval, policy)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return candidates.Run(gctx) })
	g.Go(func() error { return presence.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return tracker.Run(gctx) })
	g.Go(func() error { return heartbeat.Run(gctx) })
	g.Go(func() error { return a.followClaims(gctx, state, tracker.Claims()) })

	if a.chat != nil {
		g.Go(func() error { return a.chat.Run(gctx, a.tuning.ReconnectDelay) })
		g.Go(func() error { return NewChatFollower(a.chat, state).Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, errSessionDone) {
		a.logger.Printf("Every campaign of %s is finished", group.Game.DisplayName)
		return nil
	}
	return err
}

// prepareCampaigns loads tier details and keeps only campaigns with tiers
// left to claim, tiers in ascending order of required minutes.
func (a *App) prepareCampaigns(ctx context.Context, campaigns []twitch.Campaign) []twitch.Campaign {
	policy := RetryPolicyFrom(a.tuning)
	var prepared []twitch.Campaign

	for _, summary := range campaigns {
		campaign, err := Retry(ctx, policy, a.logger, "campaign details", func(ctx context.Context) (twitch.Campaign, error) {
			campaign, err := a.api.CampaignDetails(ctx, summary.ID)
			return campaign, structural(err)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Printf("Skipping campaign %s: %v", summary.Name, err)
			continue
		}
		if !campaign.IsActive() {
			continue
		}
		if campaign.Game.ID == "" {
			campaign.Game = summary.Game
		}

		campaign.Drops = pendingDrops(campaign.Drops, a.claimed)
		if len(campaign.Drops) > 0 {
			prepared = append(prepared, campaign)
		}
	}

	return prepared
}

func pendingDrops(drops []twitch.TimeBasedDrop, claimed *ClaimedDrops) []twitch.TimeBasedDrop {
	pending := slices.DeleteFunc(slices.Clone(drops), func(d twitch.TimeBasedDrop) bool {
		return claimed.Contains(d.ID) || (d.Self != nil && d.Self.IsClaimed)
	})
	slices.SortStableFunc(pending, func(a, b twitch.TimeBasedDrop) int {
		return cmp.Compare(a.RequiredMinutesWatched, b.RequiredMinutesWatched)
	})
	return pending
}

// followClaims prunes claimed tiers after every claim and ends the session
// when no campaign has tiers left.
func (a *App) followClaims(ctx context.Context, state *State, claims *Broadcast[string]) error {
	var version uint64

	for {
		dropID, next, err := claims.Wait(ctx, version)
		if err != nil {
			return err
		}
		version = next
		a.logger.Printf("Tier %s done", dropID)

		for _, campaign := range state.CompleteClaimed() {
			a.logger.Printf("Campaign %s finished", campaign.Name)
		}
		if len(state.Campaigns()) == 0 {
			return errSessionDone
		}
	}
}
