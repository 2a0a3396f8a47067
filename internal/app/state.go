package app

import (
	"slices"
	"sort"
	"sync"

	"github.com/antlu/drops-farmer/internal/twitch"
)

type poolEntry struct {
	channel twitch.Channel
	seq     uint64
}

// State is shared by the session's tasks. Every accessor copies under the
// lock; no caller keeps a reference into the maps.
type State struct {
	mu sync.Mutex

	nowWatched NowWatched
	watchFeed  *Broadcast[NowWatched]

	pool    map[string]poolEntry
	nextSeq uint64

	campaigns []twitch.Campaign
	allow     map[string][]twitch.Channel
	directory map[string][]twitch.Channel

	claimed *ClaimedDrops
}

func NewState(claimed *ClaimedDrops) *State {
	return &State{
		watchFeed: NewBroadcast(NowWatched{}),
		pool:      make(map[string]poolEntry),
		allow:     make(map[string][]twitch.Channel),
		directory: make(map[string][]twitch.Channel),
		claimed:   claimed,
	}
}

func (s *State) Claimed() *ClaimedDrops {
	return s.claimed
}

func (s *State) NowWatched() NowWatched {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowWatched
}

// SetNowWatched is the only way to change the watched channel. It reports
// whether the value changed and publishes changes to WatchFeed.
func (s *State) SetNowWatched(nw NowWatched) bool {
	s.mu.Lock()
	if s.nowWatched == nw {
		s.mu.Unlock()
		return false
	}
	s.nowWatched = nw
	s.mu.Unlock()

	s.watchFeed.Publish(nw)
	return true
}

func (s *State) WatchFeed() *Broadcast[NowWatched] {
	return s.watchFeed
}

// Pool returns the candidate pool in insertion order.
func (s *State) Pool() []twitch.Channel {
	s.mu.Lock()
	entries := make([]poolEntry, 0, len(s.pool))
	for _, entry := range s.pool {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	channels := make([]twitch.Channel, len(entries))
	for i, entry := range entries {
		channels[i] = entry.channel
	}
	return channels
}

func (s *State) PoolSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// AddCandidates inserts channels not yet pooled until the pool holds limit
// entries, and returns how many were inserted.
func (s *State) AddCandidates(channels []twitch.Channel, limit int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, channel := range channels {
		if len(s.pool) >= limit {
			break
		}
		if channel.ID == "" {
			continue
		}
		if _, ok := s.pool[channel.ID]; ok {
			continue
		}
		s.nextSeq++
		s.pool[channel.ID] = poolEntry{channel: channel, seq: s.nextSeq}
		added++
	}
	return added
}

func (s *State) RemoveCandidate(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pool[channelID]; !ok {
		return false
	}
	delete(s.pool, channelID)
	return true
}

// SetCampaigns replaces the active campaigns.
func (s *State) SetCampaigns(campaigns []twitch.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = cloneCampaigns(campaigns)
}

func (s *State) Campaigns() []twitch.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCampaigns(s.campaigns)
}

func (s *State) SetAllowList(campaignID string, channels []twitch.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allow[campaignID] = slices.Clone(channels)
}

// AddDirectory merges a directory answer into the campaign's cached set, so
// channels pooled from earlier answers keep their classification.
func (s *State) AddDirectory(campaignID string, channels []twitch.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := channelSet(s.directory[campaignID])
	for _, channel := range channels {
		if _, ok := known[channel.ID]; ok {
			continue
		}
		known[channel.ID] = struct{}{}
		s.directory[campaignID] = append(s.directory[campaignID], channel)
	}
}

// eligibility is a snapshot of which pooled channels serve which campaigns.
type eligibility struct {
	campaigns []string
	allow     map[string]map[string]struct{}
	directory map[string]map[string]struct{}
}

func (e eligibility) priority(channelID string) int {
	best := 0
	for _, campaignID := range e.campaigns {
		if _, ok := e.allow[campaignID][channelID]; ok {
			return PriorityAllowList
		}
		if _, ok := e.directory[campaignID][channelID]; ok {
			best = PriorityDirectory
		}
	}
	return best
}

func (s *State) eligibility() eligibility {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := eligibility{
		allow:     make(map[string]map[string]struct{}),
		directory: make(map[string]map[string]struct{}),
	}
	for _, campaign := range s.campaigns {
		e.campaigns = append(e.campaigns, campaign.ID)
		e.allow[campaign.ID] = channelSet(s.allow[campaign.ID])
		e.directory[campaign.ID] = channelSet(s.directory[campaign.ID])
	}
	return e
}

// CompleteClaimed drops every pending tier already present in the claimed
// cache. Campaigns left without tiers are retired together with their cached
// channel sources, and pooled channels no longer eligible for any remaining
// campaign leave the pool. It returns the retired campaigns.
func (s *State) CompleteClaimed() []twitch.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		remaining []twitch.Campaign
		retired   []twitch.Campaign
	)
	for _, campaign := range s.campaigns {
		campaign.Drops = slices.DeleteFunc(slices.Clone(campaign.Drops), func(d twitch.TimeBasedDrop) bool {
			return s.claimed.Contains(d.ID)
		})
		if len(campaign.Drops) > 0 {
			remaining = append(remaining, campaign)
			continue
		}
		retired = append(retired, campaign)
		delete(s.allow, campaign.ID)
		delete(s.directory, campaign.ID)
	}
	s.campaigns = remaining

	if len(retired) == 0 {
		return nil
	}

	eligible := make(map[string]struct{})
	for _, campaign := range remaining {
		for _, channel := range s.allow[campaign.ID] {
			eligible[channel.ID] = struct{}{}
		}
		for _, channel := range s.directory[campaign.ID] {
			eligible[channel.ID] = struct{}{}
		}
	}
	for id := range s.pool {
		if _, ok := eligible[id]; !ok {
			delete(s.pool, id)
		}
	}

	return retired
}

func channelSet(channels []twitch.Channel) map[string]struct{} {
	set := make(map[string]struct{}, len(channels))
	for _, channel := range channels {
		set[channel.ID] = struct{}{}
	}
	return set
}

func cloneCampaigns(campaigns []twitch.Campaign) []twitch.Campaign {
	out := make([]twitch.Campaign, len(campaigns))
	for i, campaign := range campaigns {
		campaign.Allow = slices.Clone(campaign.Allow)
		campaign.Drops = slices.Clone(campaign.Drops)
		out[i] = campaign
	}
	return out
}
