package app

import (
	"context"

	"github.com/antlu/drops-farmer/internal/twitch"
)

// DropsAPI is the slice of the platform API the farming core depends on.
type DropsAPI interface {
	ActiveCampaigns(ctx context.Context) ([]twitch.Campaign, error)
	CampaignDetails(ctx context.Context, campaignID string) (twitch.Campaign, error)
	StreamInfo(ctx context.Context, login string) (twitch.StreamInfo, error)
	GameSlug(ctx context.Context, displayName string) (string, error)
	GameDirectory(ctx context.Context, slug string, dropsOnly bool) ([]twitch.Channel, error)
	CurrentDropProgress(ctx context.Context, login, channelID string) (twitch.DropProgress, error)
	Inventory(ctx context.Context) (twitch.Inventory, error)
	ClaimDrop(ctx context.Context, instanceID string) error
	SendWatchHeartbeat(ctx context.Context, login, streamID, channelID string) error
}

// NowWatched is the single channel currently being watched. The zero value
// means nothing is selected.
type NowWatched struct {
	ChannelLogin string
	ChannelID    string
	StreamID     string
}

func (nw NowWatched) IsZero() bool {
	return nw.ChannelID == ""
}

const (
	PriorityDirectory = 1
	PriorityAllowList = 2
)

type PriorityEntry struct {
	Priority int
	Channel  twitch.Channel
	seq      uint64
}

// CampaignGroup is every active campaign of one game.
type CampaignGroup struct {
	Game      twitch.Game
	Campaigns []twitch.Campaign
}

func GroupByGame(campaigns []twitch.Campaign) []CampaignGroup {
	var groups []CampaignGroup
	index := make(map[string]int)

	for _, campaign := range campaigns {
		key := campaign.Game.ID
		if key == "" {
			key = campaign.Game.DisplayName
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, CampaignGroup{Game: campaign.Game})
		}
		groups[i].Campaigns = append(groups[i].Campaigns, campaign)
	}

	return groups
}
