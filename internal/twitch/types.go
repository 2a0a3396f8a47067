package twitch

import "strings"

const CampaignStatusActive = "ACTIVE"

type Game struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
}

// Channel identity is its ID; Login is carried along for display and API calls.
type Channel struct {
	ID    string `json:"id"`
	Login string `json:"name"`
}

type DropSelf struct {
	CurrentMinutesWatched int    `json:"currentMinutesWatched"`
	DropInstanceID        string `json:"dropInstanceID"`
	IsClaimed             bool   `json:"isClaimed"`
}

type Benefit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TimeBasedDrop struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	RequiredMinutesWatched int       `json:"requiredMinutesWatched"`
	Benefits               []Benefit `json:"-"`
	Self                   *DropSelf `json:"self"`
}

func (d TimeBasedDrop) BenefitNames() string {
	names := make([]string, 0, len(d.Benefits))
	for _, b := range d.Benefits {
		names = append(names, b.Name)
	}
	return strings.Join(names, ", ")
}

type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Game   Game   `json:"game"`
	// Allow is nil when any live channel of the game's directory is eligible.
	Allow []Channel       `json:"-"`
	Drops []TimeBasedDrop `json:"-"`
}

func (c Campaign) IsActive() bool {
	return c.Status == CampaignStatusActive
}

type StreamInfo struct {
	ChannelID string
	Login     string
	// StreamID is empty while the channel is offline.
	StreamID string
}

func (s StreamInfo) IsLive() bool {
	return s.StreamID != ""
}

type DropProgress struct {
	DropID                 string
	ChannelID              string
	RequiredMinutesWatched int
	CurrentMinutesWatched  int
}

func (p DropProgress) RemainingMinutes() int {
	return max(p.RequiredMinutesWatched-p.CurrentMinutesWatched, 0)
}

type Inventory struct {
	InProgress []Campaign
}

// InstanceID returns the claimable instance of a tier, and whether the
// server already reports it as claimed.
func (inv Inventory) InstanceID(dropID string) (instanceID string, claimed bool, found bool) {
	for _, campaign := range inv.InProgress {
		for _, drop := range campaign.Drops {
			if drop.ID != dropID || drop.Self == nil {
				continue
			}
			return drop.Self.DropInstanceID, drop.Self.IsClaimed, drop.Self.DropInstanceID != ""
		}
	}
	return "", false, false
}

type Account struct {
	ID          string
	Login       string
	AccessToken string
}
