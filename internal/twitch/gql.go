package twitch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

const GQLEndpoint = "https://gql.twitch.tv/gql"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClientInfo identifies the first-party client the requests impersonate.
// Device flow tokens are bound to this client ID.
type ClientInfo struct {
	URL       string
	ID        string
	UserAgent string
}

var AndroidClient = ClientInfo{
	URL:       "https://www.twitch.tv",
	ID:        "kd1unb4b3q4t58fwlpcbzcbnm76a8fp",
	UserAgent: "Dalvik/2.1.0 (Linux; U; Android 7.1.2; SM-G977N Build/LMY48Z) tv.twitch.android.app/16.8.1/1608010",
}

type persistedQuery struct {
	Version    int    `json:"version"`
	Sha256Hash string `json:"sha256Hash"`
}

type operation struct {
	OperationName string `json:"operationName"`
	Extensions    struct {
		PersistedQuery persistedQuery `json:"persistedQuery"`
	} `json:"extensions"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string   `json:"message"`
	Path    []string `json:"path"`
}

type gqlClient struct {
	http     *http.Client
	endpoint string
	header   http.Header
}

func newGQLClient(info ClientInfo, accessToken string) *gqlClient {
	deviceID := uuid.NewString()

	header := http.Header{}
	header.Set("Client-Integrity", deviceID)
	header.Set("X-Device-Id", deviceID)
	header.Set("Client-Session-Id", uuid.NewString())
	header.Set("Client-Version", uuid.NewString())
	header.Set("Client-Id", info.ID)
	header.Set("Accept", "*/*")
	header.Set("Accept-Language", "en-EN")
	header.Set("Origin", info.URL)
	header.Set("Referer", info.URL)
	header.Set("User-Agent", info.UserAgent)
	header.Set("Content-Type", "application/json")
	if accessToken != "" {
		header.Set("Authorization", fmt.Sprintf("OAuth %s", accessToken))
	}

	return &gqlClient{
		http:     &http.Client{Timeout: 30 * time.Second},
		endpoint: GQLEndpoint,
		header:   header,
	}
}

// do posts a persisted query and decodes its data member into out.
func (c *gqlClient) do(ctx context.Context, op operation, out any) error {
	body, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", op.OperationName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = c.header.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %s: %w", op.OperationName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading %s response: %w", op.OperationName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", op.OperationName, resp.StatusCode)
	}

	envelope := struct {
		Data   jsoniter.RawMessage `json:"data"`
		Errors []gqlError          `json:"errors"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("error decoding %s response: %w", op.OperationName, err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("%s: %s", op.OperationName, strings.Join(messages, "; "))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("%s: %w", op.OperationName, ErrMissingField)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("error decoding %s data: %w", op.OperationName, err)
	}
	return nil
}

var (
	ErrMissingField = errors.New("expected field missing in response")
	ErrNotLive      = errors.New("channel is not live")
)
