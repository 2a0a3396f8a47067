package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/antlu/drops-farmer/internal/twitch"
)

func TestRefreshStopsAtMaxTopics(t *testing.T) {
	api := newFakeAPI()
	api.directories["game"] = []twitch.Channel{channel("x", "extra")}

	s := newTestState(t)
	s.SetCampaigns([]twitch.Campaign{campaign("c1", nil, "d1"), campaign("c2", nil, "d2")})

	full := make([]twitch.Channel, 50)
	for i := range full {
		full[i] = channel(fmt.Sprint(i+1), fmt.Sprintf("ch%d", i+1))
	}
	s.AddCandidates(full, 50)

	m := NewCandidateManager(api, s, 50, time.Minute, testPolicy)
	if added := m.refresh(context.Background()); added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	if s.PoolSize() != 50 {
		t.Errorf("pool size = %d, want 50", s.PoolSize())
	}
	if n := api.count("GameDirectory"); n != 0 {
		t.Errorf("GameDirectory called %d times on a full pool", n)
	}
}

func TestRefreshFirstCampaignWinsWhenTight(t *testing.T) {
	api := newFakeAPI()
	s := newTestState(t)
	s.SetCampaigns([]twitch.Campaign{
		campaign("c1", []twitch.Channel{channel("1", "one"), channel("2", "two")}, "d1"),
		campaign("c2", []twitch.Channel{channel("3", "three"), channel("4", "four")}, "d2"),
	})

	m := NewCandidateManager(api, s, 3, time.Minute, testPolicy)
	if added := m.refresh(context.Background()); added != 3 {
		t.Errorf("added = %d, want 3", added)
	}

	ids := poolIDs(s)
	if len(ids) != 3 || ids[0] != "1" || ids[1] != "2" || ids[2] != "3" {
		t.Errorf("pool = %v, want [1 2 3]", ids)
	}

	if added := m.refresh(context.Background()); added != 0 {
		t.Errorf("second refresh added %d", added)
	}
}

func TestRefreshSurvivesFailingCampaign(t *testing.T) {
	api := newFakeAPI()
	api.slugs["Other"] = "other"
	api.directories["other"] = []twitch.Channel{channel("7", "seven")}

	broken := campaign("c1", nil, "d1")
	broken.Game.Slug = "broken"

	open := campaign("c3", nil, "d3")
	open.Game = twitch.Game{ID: "g2", DisplayName: "Other"}

	s := newTestState(t)
	s.SetCampaigns([]twitch.Campaign{broken, campaign("c2", []twitch.Channel{channel("5", "five")}, "d2"), open})

	m := NewCandidateManager(api, s, 50, time.Minute, testPolicy)
	if added := m.refresh(context.Background()); added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	if n := api.count("GameDirectory"); n != 3 {
		t.Errorf("GameDirectory calls = %d, want 2 retries for the broken game and 1 for the open one", n)
	}
	if n := api.count("GameSlug"); n != 1 {
		t.Errorf("GameSlug calls = %d, want 1", n)
	}

	elig := s.eligibility()
	if p := elig.priority("5"); p != PriorityAllowList {
		t.Errorf("priority(5) = %d", p)
	}
	if p := elig.priority("7"); p != PriorityDirectory {
		t.Errorf("priority(7) = %d", p)
	}
}

func TestRefreshGivesUpOnMissingSlug(t *testing.T) {
	api := newFakeAPI()
	api.failures["Mystery"] = fmt.Errorf("slug of Mystery: %w", twitch.ErrMissingField)
	api.directories["game"] = []twitch.Channel{channel("7", "seven")}

	broken := campaign("c1", nil, "d1")
	broken.Game = twitch.Game{ID: "g9", DisplayName: "Mystery"}
	s := newTestState(t)
	s.SetCampaigns([]twitch.Campaign{broken, campaign("c2", nil, "d2")})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m := NewCandidateManager(api, s, 50, time.Minute, RetryPolicy{Delay: time.Millisecond})
	if added := m.refresh(ctx); added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if n := api.count("GameSlug"); n != 1 {
		t.Errorf("GameSlug called %d times, want 1", n)
	}
}
