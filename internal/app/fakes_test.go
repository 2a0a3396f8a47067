package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/antlu/drops-farmer/internal/twitch"
)

var errFake = errors.New("fake failure")

var testPolicy = RetryPolicy{Delay: time.Millisecond, MaxAttempts: 2}

type fakeAPI struct {
	mu sync.Mutex

	details     map[string]twitch.Campaign
	streams     map[string]twitch.StreamInfo
	slugs       map[string]string
	directories map[string][]twitch.Channel
	progress    twitch.DropProgress
	inventory   twitch.Inventory
	failures    map[string]error

	calls      map[string]int
	claims     []string
	heartbeats []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		details:     make(map[string]twitch.Campaign),
		streams:     make(map[string]twitch.StreamInfo),
		slugs:       make(map[string]string),
		directories: make(map[string][]twitch.Channel),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) setProgress(p twitch.DropProgress) {
	f.mu.Lock()
	f.progress = p
	f.mu.Unlock()
}

func (f *fakeAPI) ActiveCampaigns(ctx context.Context) ([]twitch.Campaign, error) {
	f.record("ActiveCampaigns")
	f.mu.Lock()
	defer f.mu.Unlock()
	var campaigns []twitch.Campaign
	for _, c := range f.details {
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

func (f *fakeAPI) CampaignDetails(ctx context.Context, campaignID string) (twitch.Campaign, error) {
	f.record("CampaignDetails")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[campaignID]; ok {
		return twitch.Campaign{}, err
	}
	c, ok := f.details[campaignID]
	if !ok {
		return twitch.Campaign{}, fmt.Errorf("campaign %s: %w", campaignID, errFake)
	}
	return c, nil
}

func (f *fakeAPI) StreamInfo(ctx context.Context, login string) (twitch.StreamInfo, error) {
	f.record("StreamInfo")
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.streams[login]
	if !ok {
		return twitch.StreamInfo{Login: login}, nil
	}
	return info, nil
}

func (f *fakeAPI) GameSlug(ctx context.Context, displayName string) (string, error) {
	f.record("GameSlug")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[displayName]; ok {
		return "", err
	}
	slug, ok := f.slugs[displayName]
	if !ok {
		return "", errFake
	}
	return slug, nil
}

func (f *fakeAPI) GameDirectory(ctx context.Context, slug string, dropsOnly bool) ([]twitch.Channel, error) {
	f.record("GameDirectory")
	f.mu.Lock()
	defer f.mu.Unlock()
	channels, ok := f.directories[slug]
	if !ok {
		return nil, errFake
	}
	return channels, nil
}

func (f *fakeAPI) CurrentDropProgress(ctx context.Context, login, channelID string) (twitch.DropProgress, error) {
	f.record("CurrentDropProgress")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress, nil
}

func (f *fakeAPI) Inventory(ctx context.Context) (twitch.Inventory, error) {
	f.record("Inventory")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inventory, nil
}

func (f *fakeAPI) ClaimDrop(ctx context.Context, instanceID string) error {
	f.record("ClaimDrop")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, instanceID)
	return nil
}

func (f *fakeAPI) SendWatchHeartbeat(ctx context.Context, login, streamID, channelID string) error {
	f.record("SendWatchHeartbeat")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, login)
	return nil
}

func (f *fakeAPI) heartbeatLogins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.heartbeats...)
}

func newTestState(t *testing.T) *State {
	t.Helper()

	claimed, err := LoadClaimedDrops(t.TempDir() + "/claimed_drops.json")
	if err != nil {
		t.Fatalf("LoadClaimedDrops: %v", err)
	}
	return NewState(claimed)
}

func channel(id, login string) twitch.Channel {
	return twitch.Channel{ID: id, Login: login}
}

func campaign(id string, allow []twitch.Channel, dropIDs ...string) twitch.Campaign {
	c := twitch.Campaign{
		ID:     id,
		Name:   "campaign " + id,
		Status: twitch.CampaignStatusActive,
		Game:   twitch.Game{ID: "g1", DisplayName: "Game", Slug: "game"},
		Allow:  allow,
	}
	for i, dropID := range dropIDs {
		c.Drops = append(c.Drops, twitch.TimeBasedDrop{ID: dropID, RequiredMinutesWatched: 60 * (i + 1)})
	}
	return c
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
