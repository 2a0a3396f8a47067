package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nicklaw5/helix/v2"
)

// ApiClient serves the drop and stream calls for one account. Stream info
// goes through helix, everything drop related through GQL persisted queries.
type ApiClient struct {
	*helix.Client
	gql          *gqlClient
	media        *http.Client
	userID       string
	usherBaseURL string
}

func NewHelixClient(accessToken string) (*helix.Client, error) {
	return helix.NewClient(&helix.Options{
		ClientID:        AndroidClient.ID,
		UserAccessToken: accessToken,
	})
}

func NewApiClient(account Account, mediaTimeout time.Duration) (*ApiClient, error) {
	client, err := NewHelixClient(account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("error creating helix client: %w", err)
	}

	return &ApiClient{
		Client:       client,
		gql:          newGQLClient(AndroidClient, account.AccessToken),
		media:        &http.Client{Timeout: mediaTimeout},
		userID:       account.ID,
		usherBaseURL: usherBaseURL,
	}, nil
}

func (ac *ApiClient) ActiveCampaigns(ctx context.Context) ([]Campaign, error) {
	var resp dashboardResponse
	if err := ac.gql.do(ctx, dropsDashboardOp(), &resp); err != nil {
		return nil, err
	}
	if resp.CurrentUser == nil {
		return nil, fmt.Errorf("drops dashboard: %w", ErrMissingField)
	}

	campaigns := make([]Campaign, 0, len(resp.CurrentUser.DropCampaigns))
	for _, data := range resp.CurrentUser.DropCampaigns {
		campaign := data.toCampaign()
		if campaign.IsActive() {
			campaigns = append(campaigns, campaign)
		}
	}
	return campaigns, nil
}

func (ac *ApiClient) CampaignDetails(ctx context.Context, campaignID string) (Campaign, error) {
	var resp campaignDetailsResponse
	if err := ac.gql.do(ctx, campaignDetailsOp(ac.userID, campaignID), &resp); err != nil {
		return Campaign{}, err
	}
	if resp.User == nil || resp.User.DropCampaign == nil {
		return Campaign{}, fmt.Errorf("campaign %s: %w", campaignID, ErrMissingField)
	}
	return resp.User.DropCampaign.toCampaign(), nil
}

func (ac *ApiClient) StreamInfo(_ context.Context, login string) (StreamInfo, error) {
	resp, err := ac.GetStreams(&helix.StreamsParams{UserLogins: []string{login}})
	if err != nil {
		return StreamInfo{}, fmt.Errorf("error getting stream of %s: %w", login, err)
	}
	if resp.StatusCode != http.StatusOK {
		return StreamInfo{}, fmt.Errorf("error getting stream of %s: %s", login, resp.ErrorMessage)
	}

	info := StreamInfo{Login: login}
	for _, stream := range resp.Data.Streams {
		if stream.Type != "" && stream.Type != "live" {
			continue
		}
		info.ChannelID = stream.UserID
		info.StreamID = stream.ID
		break
	}
	return info, nil
}

func (ac *ApiClient) GameSlug(ctx context.Context, displayName string) (string, error) {
	var resp gameRedirectResponse
	if err := ac.gql.do(ctx, gameRedirectOp(displayName), &resp); err != nil {
		return "", err
	}
	if resp.Game == nil || resp.Game.Slug == "" {
		return "", fmt.Errorf("slug of %s: %w", displayName, ErrMissingField)
	}
	return resp.Game.Slug, nil
}

func (ac *ApiClient) GameDirectory(ctx context.Context, slug string, dropsOnly bool) ([]Channel, error) {
	var resp directoryResponse
	if err := ac.gql.do(ctx, gameDirectoryOp(slug, dropsOnly), &resp); err != nil {
		return nil, err
	}
	if resp.Game == nil || resp.Game.Streams == nil {
		return nil, fmt.Errorf("directory of %s: %w", slug, ErrMissingField)
	}

	channels := make([]Channel, 0, len(resp.Game.Streams.Edges))
	for _, edge := range resp.Game.Streams.Edges {
		broadcaster := edge.Node.Broadcaster
		if broadcaster.ID == "" {
			continue
		}
		channels = append(channels, Channel{ID: broadcaster.ID, Login: broadcaster.Login})
	}
	return channels, nil
}

func (ac *ApiClient) CurrentDropProgress(ctx context.Context, login, channelID string) (DropProgress, error) {
	var resp currentSessionResponse
	if err := ac.gql.do(ctx, currentSessionOp(channelID), &resp); err != nil {
		return DropProgress{}, err
	}
	if resp.CurrentUser == nil {
		return DropProgress{}, fmt.Errorf("drop session on %s: %w", login, ErrMissingField)
	}

	session := resp.CurrentUser.DropCurrentSession
	if session == nil {
		// nothing accrued on this channel yet
		return DropProgress{ChannelID: channelID}, nil
	}

	progress := DropProgress{
		DropID:                 session.DropID,
		ChannelID:              channelID,
		RequiredMinutesWatched: session.RequiredMinutesWatched,
		CurrentMinutesWatched:  session.CurrentMinutesWatched,
	}
	if session.Channel != nil && session.Channel.ID != "" {
		progress.ChannelID = session.Channel.ID
	}
	return progress, nil
}

func (ac *ApiClient) Inventory(ctx context.Context) (Inventory, error) {
	var resp inventoryResponse
	if err := ac.gql.do(ctx, inventoryOp(), &resp); err != nil {
		return Inventory{}, err
	}
	if resp.CurrentUser == nil || resp.CurrentUser.Inventory == nil {
		return Inventory{}, fmt.Errorf("inventory: %w", ErrMissingField)
	}

	var inv Inventory
	for _, data := range resp.CurrentUser.Inventory.DropCampaignsInProgress {
		inv.InProgress = append(inv.InProgress, data.toCampaign())
	}
	return inv, nil
}

var ErrClaimRejected = errors.New("claim rejected")

func (ac *ApiClient) ClaimDrop(ctx context.Context, instanceID string) error {
	var resp claimResponse
	if err := ac.gql.do(ctx, claimDropOp(instanceID), &resp); err != nil {
		return err
	}
	if resp.ClaimDropRewards == nil {
		return fmt.Errorf("claim %s: %w", instanceID, ErrClaimRejected)
	}

	switch resp.ClaimDropRewards.Status {
	case "ELIGIBLE_FOR_ALL", "DROP_INSTANCE_ALREADY_CLAIMED", "":
		return nil
	default:
		return fmt.Errorf("claim %s: %w: %s", instanceID, ErrClaimRejected, resp.ClaimDropRewards.Status)
	}
}
