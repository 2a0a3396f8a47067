package twitch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// newTestClient routes every GQL call to handler, keyed by operation name.
func newTestClient(t *testing.T, responses map[string]string) (*ApiClient, *[]operation) {
	t.Helper()

	var (
		mu   sync.Mutex
		seen []operation
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var op operation
		if err := json.Unmarshal(body, &op); err != nil {
			t.Errorf("bad request body: %v", err)
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if got := r.Header.Get("Authorization"); got != "OAuth token" {
			t.Errorf("Authorization header = %q", got)
		}
		mu.Lock()
		seen = append(seen, op)
		mu.Unlock()

		resp, ok := responses[op.OperationName]
		if !ok {
			http.Error(w, "unexpected operation", http.StatusNotFound)
			return
		}
		io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)

	gql := newGQLClient(AndroidClient, "token")
	gql.endpoint = srv.URL
	return &ApiClient{gql: gql, userID: "user-1", media: srv.Client()}, &seen
}

func TestCampaignDetails(t *testing.T) {
	client, seen := newTestClient(t, map[string]string{
		"DropCampaignDetails": `{"data":{"user":{"dropCampaign":{
			"id":"c1","name":"Spring","status":"ACTIVE",
			"game":{"id":"g1","displayName":"Game","slug":"game"},
			"allow":{"channels":[{"id":"10","displayName":"Alpha","name":"alpha"}],"isEnabled":true},
			"timeBasedDrops":[
				{"id":"d2","requiredMinutesWatched":120,"benefitEdges":[{"benefit":{"id":"b2","name":"Hat"}}]},
				{"id":"d1","requiredMinutesWatched":60}
			]}}}}`,
	})

	campaign, err := client.CampaignDetails(context.Background(), "c1")
	if err != nil {
		t.Fatalf("CampaignDetails: %v", err)
	}

	if campaign.ID != "c1" || !campaign.IsActive() {
		t.Errorf("unexpected campaign %+v", campaign)
	}
	if len(campaign.Allow) != 1 || campaign.Allow[0] != (Channel{ID: "10", Login: "alpha"}) {
		t.Errorf("Allow = %+v", campaign.Allow)
	}
	if len(campaign.Drops) != 2 || campaign.Drops[0].BenefitNames() != "Hat" {
		t.Errorf("Drops = %+v", campaign.Drops)
	}

	op := (*seen)[0]
	if op.Variables["dropID"] != "c1" || op.Variables["channelLogin"] != "user-1" {
		t.Errorf("variables = %v", op.Variables)
	}
	if op.Extensions.PersistedQuery.Version != 1 || op.Extensions.PersistedQuery.Sha256Hash == "" {
		t.Errorf("persisted query = %+v", op.Extensions.PersistedQuery)
	}
}

func TestCampaignWithoutAllowListIsOpen(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"DropCampaignDetails": `{"data":{"user":{"dropCampaign":{"id":"c1","status":"ACTIVE","allow":{"channels":null}}}}}`,
	})

	campaign, err := client.CampaignDetails(context.Background(), "c1")
	if err != nil {
		t.Fatalf("CampaignDetails: %v", err)
	}
	if campaign.Allow != nil {
		t.Errorf("Allow = %+v, want nil", campaign.Allow)
	}
}

func TestGQLErrorsAreSurfaced(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"Inventory": `{"errors":[{"message":"service timeout"}],"data":null}`,
	})

	_, err := client.Inventory(context.Background())
	if err == nil || !strings.Contains(err.Error(), "service timeout") {
		t.Fatalf("expected service timeout error, got %v", err)
	}
}

func TestGameDirectory(t *testing.T) {
	client, seen := newTestClient(t, map[string]string{
		"DirectoryPage_Game": `{"data":{"game":{"streams":{"edges":[
			{"node":{"id":"s1","broadcaster":{"id":"1","login":"one"}}},
			{"node":{"id":"s2","broadcaster":{"id":"","login":"ghost"}}},
			{"node":{"id":"s3","broadcaster":{"id":"3","login":"three"}}}
		]}}}}`,
	})

	channels, err := client.GameDirectory(context.Background(), "game", true)
	if err != nil {
		t.Fatalf("GameDirectory: %v", err)
	}
	want := []Channel{{ID: "1", Login: "one"}, {ID: "3", Login: "three"}}
	if len(channels) != len(want) {
		t.Fatalf("channels = %+v", channels)
	}
	for i := range want {
		if channels[i] != want[i] {
			t.Errorf("channels[%d] = %+v, want %+v", i, channels[i], want[i])
		}
	}

	options := (*seen)[0].Variables["options"].(map[string]any)
	filters := options["systemFilters"].([]any)
	if len(filters) != 1 || filters[0] != "DROPS_ENABLED" {
		t.Errorf("systemFilters = %v", filters)
	}
}

func TestCurrentDropProgress(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"DropCurrentSessionContext": `{"data":{"currentUser":{"dropCurrentSession":{
			"channel":{"id":"10"},"dropID":"d1","currentMinutesWatched":40,"requiredMinutesWatched":60}}}}`,
	})

	progress, err := client.CurrentDropProgress(context.Background(), "alpha", "10")
	if err != nil {
		t.Fatalf("CurrentDropProgress: %v", err)
	}
	if progress.DropID != "d1" || progress.RemainingMinutes() != 20 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestCurrentDropProgressWithoutSession(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"DropCurrentSessionContext": `{"data":{"currentUser":{"dropCurrentSession":null}}}`,
	})

	progress, err := client.CurrentDropProgress(context.Background(), "alpha", "10")
	if err != nil {
		t.Fatalf("CurrentDropProgress: %v", err)
	}
	if progress.DropID != "" || progress.CurrentMinutesWatched != 0 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestInventoryInstanceID(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"Inventory": `{"data":{"currentUser":{"inventory":{"dropCampaignsInProgress":[
			{"id":"c1","timeBasedDrops":[
				{"id":"d1","self":{"currentMinutesWatched":60,"dropInstanceID":"u#c1#d1","isClaimed":false}},
				{"id":"d2","self":{"currentMinutesWatched":10,"dropInstanceID":""}}
			]}]}}}}`,
	})

	inv, err := client.Inventory(context.Background())
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}

	if id, claimed, ok := inv.InstanceID("d1"); !ok || claimed || id != "u#c1#d1" {
		t.Errorf("InstanceID(d1) = %q, %v, %v", id, claimed, ok)
	}
	if _, _, ok := inv.InstanceID("d2"); ok {
		t.Error("d2 is not claimable yet")
	}
	if _, _, ok := inv.InstanceID("missing"); ok {
		t.Error("unknown drop reported as claimable")
	}
}

func TestClaimDrop(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		wantErr bool
	}{
		{"eligible", `{"data":{"claimDropRewards":{"status":"ELIGIBLE_FOR_ALL"}}}`, false},
		{"already claimed", `{"data":{"claimDropRewards":{"status":"DROP_INSTANCE_ALREADY_CLAIMED"}}}`, false},
		{"rejected", `{"data":{"claimDropRewards":{"status":"DROP_INSTANCE_NOT_FOUND"}}}`, true},
		{"null", `{"data":{"claimDropRewards":null}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, seen := newTestClient(t, map[string]string{"DropsPage_ClaimDropRewards": tt.resp})

			err := client.ClaimDrop(context.Background(), "u#c1#d1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ClaimDrop err = %v, wantErr %v", err, tt.wantErr)
			}

			input := (*seen)[0].Variables["input"].(map[string]any)
			if input["dropInstanceID"] != "u#c1#d1" {
				t.Errorf("input = %v", input)
			}
		})
	}
}
