package twitch

func newOperation(name, hash string, variables map[string]any) operation {
	op := operation{OperationName: name, Variables: variables}
	op.Extensions.PersistedQuery = persistedQuery{Version: 1, Sha256Hash: hash}
	return op
}

func dropsDashboardOp() operation {
	return newOperation("ViewerDropsDashboard",
		"5a4da2ab3d5b47c9f9ce864e727b2cb346af1e3ea8b897fe8f704a97ff017619",
		map[string]any{"fetchRewardCampaigns": false})
}

func campaignDetailsOp(userID, campaignID string) operation {
	return newOperation("DropCampaignDetails",
		"039277bf98f3130929262cc7c6efd9c141ca3749cb6dca442fc8ead9a53f77c1",
		map[string]any{"channelLogin": userID, "dropID": campaignID})
}

func currentSessionOp(channelID string) operation {
	return newOperation("DropCurrentSessionContext",
		"4d06b702d25d652afb9ef835d2a550031f1cf762b193523a92166f40ea3d142b",
		map[string]any{"channelID": channelID, "channelLogin": ""})
}

func playbackTokenOp(login string) operation {
	return newOperation("PlaybackAccessToken",
		"ed230aa1e33e07eebb8928504583da78a5173989fadfb1ac94be06a04f3cdbe9",
		map[string]any{
			"isLive":     true,
			"isVod":      false,
			"login":      login,
			"platform":   "web",
			"playerType": "site",
			"vodID":      "",
		})
}

func gameDirectoryOp(slug string, dropsOnly bool) operation {
	filters := []string{}
	if dropsOnly {
		filters = append(filters, "DROPS_ENABLED")
	}
	return newOperation("DirectoryPage_Game",
		"c7c9d5aad09155c4161d2382092dc44610367f3536aac39019ec2582ae5065f9",
		map[string]any{
			"limit":             30,
			"slug":              slug,
			"imageWidth":        50,
			"includeIsDJ":       false,
			"sortTypeIsRecency": false,
			"options": map[string]any{
				"broadcasterLanguages":   []string{},
				"freeformTags":           nil,
				"includeRestricted":      []string{"SUB_ONLY_LIVE"},
				"recommendationsContext": map[string]any{"platform": "web"},
				"sort":                   "RELEVANCE",
				"systemFilters":          filters,
				"tags":                   []string{},
				"requestID":              "JIRA-VXP-2397",
			},
		})
}

func gameRedirectOp(displayName string) operation {
	return newOperation("DirectoryGameRedirect",
		"1f0300090caceec51f33c5e20647aceff9017f740f223c3c532ba6fa59f6b6cc",
		map[string]any{"name": displayName})
}

func inventoryOp() operation {
	return newOperation("Inventory",
		"09acb7d3d7e605a92bdfdcc465f6aa481b71c234d8686a9ba38ea5ed51507592",
		map[string]any{"fetchRewardCampaigns": false})
}

func claimDropOp(instanceID string) operation {
	return newOperation("DropsPage_ClaimDropRewards",
		"a455deea71bdc9015b78eb49f4acfbce8baa7ccbedd28e549bb025bd0f751930",
		map[string]any{"input": map[string]any{"dropInstanceID": instanceID}})
}

// Wire shapes of the responses above.

type campaignData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Game   Game   `json:"game"`
	Allow  struct {
		Channels  []Channel `json:"channels"`
		IsEnabled bool      `json:"isEnabled"`
	} `json:"allow"`
	TimeBasedDrops []dropData `json:"timeBasedDrops"`
}

type dropData struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	RequiredMinutesWatched int       `json:"requiredMinutesWatched"`
	Self                   *DropSelf `json:"self"`
	BenefitEdges           []struct {
		Benefit Benefit `json:"benefit"`
	} `json:"benefitEdges"`
}

func (d campaignData) toCampaign() Campaign {
	c := Campaign{ID: d.ID, Name: d.Name, Status: d.Status, Game: d.Game}
	if len(d.Allow.Channels) > 0 {
		c.Allow = d.Allow.Channels
	}
	for _, drop := range d.TimeBasedDrops {
		c.Drops = append(c.Drops, drop.toDrop())
	}
	return c
}

func (d dropData) toDrop() TimeBasedDrop {
	drop := TimeBasedDrop{
		ID:                     d.ID,
		Name:                   d.Name,
		RequiredMinutesWatched: d.RequiredMinutesWatched,
		Self:                   d.Self,
	}
	for _, edge := range d.BenefitEdges {
		drop.Benefits = append(drop.Benefits, edge.Benefit)
	}
	return drop
}

type dashboardResponse struct {
	CurrentUser *struct {
		DropCampaigns []campaignData `json:"dropCampaigns"`
	} `json:"currentUser"`
}

type campaignDetailsResponse struct {
	User *struct {
		DropCampaign *campaignData `json:"dropCampaign"`
	} `json:"user"`
}

type currentSessionResponse struct {
	CurrentUser *struct {
		DropCurrentSession *struct {
			Channel *struct {
				ID string `json:"id"`
			} `json:"channel"`
			DropID                 string `json:"dropID"`
			CurrentMinutesWatched  int    `json:"currentMinutesWatched"`
			RequiredMinutesWatched int    `json:"requiredMinutesWatched"`
		} `json:"dropCurrentSession"`
	} `json:"currentUser"`
}

type directoryResponse struct {
	Game *struct {
		Streams *struct {
			Edges []struct {
				Node struct {
					ID          string `json:"id"`
					Broadcaster struct {
						ID          string `json:"id"`
						Login       string `json:"login"`
						DisplayName string `json:"displayName"`
					} `json:"broadcaster"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"streams"`
	} `json:"game"`
}

type gameRedirectResponse struct {
	Game *struct {
		Slug string `json:"slug"`
	} `json:"game"`
}

type inventoryResponse struct {
	CurrentUser *struct {
		Inventory *struct {
			DropCampaignsInProgress []campaignData `json:"dropCampaignsInProgress"`
		} `json:"inventory"`
	} `json:"currentUser"`
}

type claimResponse struct {
	ClaimDropRewards *struct {
		Status string `json:"status"`
	} `json:"claimDropRewards"`
}

type playbackTokenResponse struct {
	StreamPlaybackAccessToken *struct {
		Value     string `json:"value"`
		Signature string `json:"signature"`
	} `json:"streamPlaybackAccessToken"`
}
