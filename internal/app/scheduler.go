package app

import (
	"container/heap"
	"context"
	"log"
	"time"

	"github.com/antlu/drops-farmer/internal/twitch"
)

// priorityQueue is a max-heap on priority. Equal priorities prefer the
// channel being watched, then the earlier pool insertion.
type priorityQueue struct {
	entries []PriorityEntry
	current string
}

func (q *priorityQueue) Len() int { return len(q.entries) }

func (q *priorityQueue) Less(i, j int) bool {
	a, b := q.entries[i], q.entries[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if aCur, bCur := a.Channel.ID == q.current, b.Channel.ID == q.current; aCur != bCur {
		return aCur
	}
	return a.seq < b.seq
}

func (q *priorityQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
}

func (q *priorityQueue) Push(x any) {
	q.entries = append(q.entries, x.(PriorityEntry))
}

func (q *priorityQueue) Pop() any {
	old := q.entries
	n := len(old)
	entry := old[n-1]
	q.entries = old[:n-1]
	return entry
}

// rankCandidates builds a fresh heap from the pool snapshot and drains it
// into a ranking, best first. Channels serving no active campaign are left out.
func rankCandidates(pool []twitch.Channel, elig eligibility, currentID string) []PriorityEntry {
	q := &priorityQueue{current: currentID}
	for i, channel := range pool {
		priority := elig.priority(channel.ID)
		if priority == 0 {
			continue
		}
		q.entries = append(q.entries, PriorityEntry{Priority: priority, Channel: channel, seq: uint64(i)})
	}
	heap.Init(q)

	ranking := make([]PriorityEntry, 0, q.Len())
	for q.Len() > 0 {
		ranking = append(ranking, heap.Pop(q).(PriorityEntry))
	}
	return ranking
}

// Scheduler picks the one channel to watch.
type Scheduler struct {
	api      DropsAPI
	state    *State
	interval time.Duration
	policy   RetryPolicy
	ranking  *Broadcast[[]PriorityEntry]
	logger   *log.Logger
}

func NewScheduler(api DropsAPI, state *State, interval time.Duration, policy RetryPolicy) *Scheduler {
	return &Scheduler{
		api:      api,
		state:    state,
		interval: interval,
		policy:   policy.WithMaxAttempts(3),
		ranking:  NewBroadcast[[]PriorityEntry](nil),
		logger:   newLogger("scheduler"),
	}
}

// Ranking carries the most recent ranking.
func (s *Scheduler) Ranking() *Broadcast[[]PriorityEntry] {
	return s.ranking
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.step(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) step(ctx context.Context) {
	current := s.state.NowWatched()
	ranking := rankCandidates(s.state.Pool(), s.state.eligibility(), current.ChannelID)
	s.ranking.Publish(ranking)

	next := s.selectTop(ctx, ranking, current)
	if ctx.Err() != nil {
		return
	}
	if s.state.SetNowWatched(next) {
		if next.IsZero() {
			s.logger.Print("No live candidates, watching nothing")
		} else {
			s.logger.Printf("Now watching %s", next.ChannelLogin)
		}
	}
}

// selectTop walks the ranking until a live channel is found. The current
// channel keeps its stream without another lookup.
func (s *Scheduler) selectTop(ctx context.Context, ranking []PriorityEntry, current NowWatched) NowWatched {
	for _, entry := range ranking {
		if entry.Channel.ID == current.ChannelID && current.StreamID != "" {
			return current
		}

		info, err := Retry(ctx, s.policy, s.logger, "stream info", func(ctx context.Context) (twitch.StreamInfo, error) {
			info, err := s.api.StreamInfo(ctx, entry.Channel.Login)
			return info, structural(err)
		})
		if err != nil {
			if ctx.Err() != nil {
				return current
			}
			s.logger.Printf("Skipping %s: %v", entry.Channel.Login, err)
			continue
		}
		if !info.IsLive() {
			continue
		}

		return NowWatched{
			ChannelLogin: entry.Channel.Login,
			ChannelID:    entry.Channel.ID,
			StreamID:     info.StreamID,
		}
	}

	return NowWatched{}
}
