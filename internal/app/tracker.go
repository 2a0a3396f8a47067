package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/antlu/drops-farmer/internal/twitch"
)

var ErrNoInstance = errors.New("drop instance not claimable yet")

type trackerPhase int

const (
	phaseIdle trackerPhase = iota
	phaseTracking
	phaseDue
	phaseClaiming
	phaseClaimed
)

func (p trackerPhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseTracking:
		return "tracking"
	case phaseDue:
		return "due"
	case phaseClaiming:
		return "claiming"
	case phaseClaimed:
		return "claimed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// deadlineEstimate keeps an expected completion time that only moves when a
// new observation disagrees with it by more than tolerance.
type deadlineEstimate struct {
	tolerance time.Duration
	deadline  time.Time
	set       bool
}

// Observe returns the deadline after seeing remaining watch time at now, and
// whether it was recomputed.
func (d *deadlineEstimate) Observe(now time.Time, remaining time.Duration) (time.Time, bool) {
	expected := now.Add(remaining)
	if d.set {
		drift := expected.Sub(d.deadline)
		if drift < 0 {
			drift = -drift
		}
		if drift <= d.tolerance {
			return d.deadline, false
		}
	}
	d.deadline = expected
	d.set = true
	return d.deadline, true
}

func (d *deadlineEstimate) Reset() {
	d.deadline = time.Time{}
	d.set = false
}

type claimTarget struct {
	instanceID string
	claimed    bool
}

// Tracker polls drop progress on the watched channel and claims tiers.
type Tracker struct {
	api      DropsAPI
	state    *State
	interval time.Duration
	policy   RetryPolicy
	claims   *Broadcast[string]
	reporter *ProgressReporter
	logger   *log.Logger
	now      func() time.Time

	phase    trackerPhase
	dropID   string
	deadline deadlineEstimate
}

func NewTracker(api DropsAPI, state *State, interval, tolerance time.Duration, policy RetryPolicy, reporter *ProgressReporter) *Tracker {
	return &Tracker{
		api:      api,
		state:    state,
		interval: interval,
		policy:   policy,
		claims:   NewBroadcast(""),
		reporter: reporter,
		logger:   newLogger("tracker"),
		now:      time.Now,
		deadline: deadlineEstimate{tolerance: tolerance},
	}
}

// Claims carries the most recently claimed drop id.
func (t *Tracker) Claims() *Broadcast[string] {
	return t.claims
}

func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if err := t.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Print(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tracker) setPhase(p trackerPhase) {
	if t.phase != p {
		t.logger.Printf("%s -> %s", t.phase, p)
		t.phase = p
	}
}

func (t *Tracker) poll(ctx context.Context) error {
	nw := t.state.NowWatched()
	if nw.IsZero() {
		t.setPhase(phaseIdle)
		return nil
	}

	progress, err := Retry(ctx, t.policy.WithMaxAttempts(3), t.logger, "drop progress", func(ctx context.Context) (twitch.DropProgress, error) {
		progress, err := t.api.CurrentDropProgress(ctx, nw.ChannelLogin, nw.ChannelID)
		return progress, structural(err)
	})
	if err != nil {
		return fmt.Errorf("error polling progress on %s: %w", nw.ChannelLogin, err)
	}

	if t.dropID != "" && progress.DropID != t.dropID {
		previous := t.dropID
		t.dropID = ""
		t.deadline.Reset()
		if !t.state.Claimed().Contains(previous) {
			t.logger.Printf("Drop %s finished server-side", previous)
			t.setPhase(phaseDue)
			if err := t.claim(ctx, previous); err != nil {
				return err
			}
		}
	}

	if progress.DropID == "" || progress.CurrentMinutesWatched == 0 {
		t.setPhase(phaseIdle)
		return nil
	}
	if t.state.Claimed().Contains(progress.DropID) {
		t.dropID = progress.DropID
		t.setPhase(phaseClaimed)
		return nil
	}

	t.dropID = progress.DropID
	t.setPhase(phaseTracking)

	now := t.now()
	remaining := time.Duration(progress.RemainingMinutes()) * time.Minute
	deadline, moved := t.deadline.Observe(now, remaining)
	if moved {
		t.logger.Printf("Drop %s expected at %s", progress.DropID, deadline.Format(time.TimeOnly))
	}
	if t.reporter != nil {
		if err := t.reporter.Report(now, nw.ChannelLogin, progress, deadline); err != nil {
			t.logger.Printf("Error reporting progress: %v", err)
		}
	}

	if remaining > 0 {
		if !now.Before(deadline) {
			t.logger.Printf("Drop %s overdue, %d min still reported", progress.DropID, progress.RemainingMinutes())
			t.deadline.Reset()
		}
		return nil
	}

	t.setPhase(phaseDue)
	if err := t.claim(ctx, progress.DropID); err != nil {
		if errors.Is(err, ErrNoInstance) {
			t.logger.Printf("Drop %s not in inventory yet", progress.DropID)
			t.setPhase(phaseTracking)
			return nil
		}
		return err
	}
	t.deadline.Reset()
	return nil
}

// claim redeems dropID once. An id already in the claimed cache is never
// claimed again; a tier the server already marks claimed is only recorded.
func (t *Tracker) claim(ctx context.Context, dropID string) error {
	claimed := t.state.Claimed()
	if claimed.Contains(dropID) {
		t.setPhase(phaseClaimed)
		return nil
	}
	t.setPhase(phaseClaiming)

	target, err := Retry(ctx, t.policy, t.logger, "inventory lookup", func(ctx context.Context) (claimTarget, error) {
		inv, err := t.api.Inventory(ctx)
		if err != nil {
			return claimTarget{}, structural(err)
		}
		instanceID, isClaimed, found := inv.InstanceID(dropID)
		if isClaimed {
			return claimTarget{instanceID: instanceID, claimed: true}, nil
		}
		if !found {
			return claimTarget{}, Permanent(fmt.Errorf("%s: %w", dropID, ErrNoInstance))
		}
		return claimTarget{instanceID: instanceID}, nil
	})
	if err != nil {
		return fmt.Errorf("error locating drop %s: %w", dropID, err)
	}

	if !target.claimed {
		err := RetryDo(ctx, t.policy, t.logger, "claim", func(ctx context.Context) error {
			return t.api.ClaimDrop(ctx, target.instanceID)
		})
		if err != nil {
			return fmt.Errorf("error claiming drop %s: %w", dropID, err)
		}
	}

	if _, err := claimed.Add(dropID); err != nil {
		return fmt.Errorf("error saving claimed drop %s: %w", dropID, err)
	}
	t.claims.Publish(dropID)
	t.setPhase(phaseClaimed)
	t.logger.Printf("Claimed drop %s", dropID)

	return nil
}
