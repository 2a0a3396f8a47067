package app

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestHeartbeatFollowsSelection(t *testing.T) {
	api := newFakeAPI()
	s := newTestState(t)
	s.SetNowWatched(NowWatched{ChannelLogin: "alpha", ChannelID: "1", StreamID: "s1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- NewHeartbeat(api, s, NewBroadcast[[]PriorityEntry](nil), time.Hour, testPolicy).Run(ctx) }()

	eventually(t, "heartbeat for alpha", func() bool { return slices.Contains(api.heartbeatLogins(), "alpha") })

	s.SetNowWatched(NowWatched{ChannelLogin: "bravo", ChannelID: "2", StreamID: "s2"})
	eventually(t, "heartbeat for bravo", func() bool { return slices.Contains(api.heartbeatLogins(), "bravo") })

	cancel()
	<-done

	if got := api.heartbeatLogins(); !slices.Equal(got, []string{"alpha", "bravo"}) {
		t.Errorf("heartbeats = %v", got)
	}
}

func TestHeartbeatSkipsUnrankedChannel(t *testing.T) {
	ranking := NewBroadcast[[]PriorityEntry](nil)
	h := NewHeartbeat(newFakeAPI(), newTestState(t), ranking, time.Hour, testPolicy)
	alpha := NowWatched{ChannelLogin: "alpha", ChannelID: "1", StreamID: "s1"}

	if got := h.target(alpha); got != alpha {
		t.Errorf("before any ranking: target = %+v", got)
	}

	ranking.Publish([]PriorityEntry{{Channel: channel("1", "alpha"), Priority: PriorityAllowList}})
	if got := h.target(alpha); got != alpha {
		t.Errorf("ranked: target = %+v", got)
	}

	ranking.Publish([]PriorityEntry{{Channel: channel("2", "bravo"), Priority: PriorityDirectory}})
	if got := h.target(alpha); !got.IsZero() {
		t.Errorf("dropped from ranking: target = %+v", got)
	}
}

type fakeChat struct {
	mu     sync.Mutex
	events []string
}

func (c *fakeChat) Join(channels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.events = append(c.events, "join "+ch)
	}
}

func (c *fakeChat) Depart(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "part "+channel)
}

func TestChatFollowerSwitchesChannels(t *testing.T) {
	chat := &fakeChat{}
	f := NewChatFollower(chat, newTestState(t))

	f.follow(NowWatched{ChannelLogin: "alpha", ChannelID: "1"})
	f.follow(NowWatched{ChannelLogin: "alpha", ChannelID: "1"})
	f.follow(NowWatched{ChannelLogin: "bravo", ChannelID: "2"})
	f.follow(NowWatched{})

	want := []string{"join alpha", "part alpha", "join bravo", "part bravo"}
	if !slices.Equal(chat.events, want) {
		t.Errorf("events = %v, want %v", chat.events, want)
	}
}
