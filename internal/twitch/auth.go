package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	deviceURL = "https://id.twitch.tv/oauth2/device"
	tokenURL  = "https://id.twitch.tv/oauth2/token"
)

type deviceCodeData struct {
	DeviceCode      string `json:"device_code"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
}

type tokensData struct {
	AccessToken  string   `json:"access_token"`
	ExpiresIn    int      `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
	Message      string   `json:"message"`
}

var ErrDeviceCodeExpired = errors.New("device code expired before confirmation")

// DeviceFlow runs the OAuth device authorization grant. prompt receives the
// verification URI and the code the user has to enter there.
func DeviceFlow(ctx context.Context, prompt func(verificationURI, userCode string)) (Account, error) {
	var code deviceCodeData
	err := postForm(ctx, deviceURL, url.Values{
		"client_id": {AndroidClient.ID},
		"scopes":    {"user_read"},
	}, &code)
	if err != nil {
		return Account{}, fmt.Errorf("error requesting device code: %w", err)
	}
	if code.DeviceCode == "" || code.UserCode == "" {
		return Account{}, fmt.Errorf("device code: %w", ErrMissingField)
	}

	prompt(code.VerificationURI, code.UserCode)

	interval := time.Duration(max(code.Interval, 5)) * time.Second
	deadline := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)
	form := url.Values{
		"client_id":   {AndroidClient.ID},
		"device_code": {code.DeviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"scopes":      {"user_read"},
	}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return Account{}, ctx.Err()
		case <-time.After(interval):
		}

		var tokens tokensData
		err := postForm(ctx, tokenURL, form, &tokens)
		if err != nil && tokens.Message == "" {
			return Account{}, fmt.Errorf("error polling token: %w", err)
		}
		if tokens.AccessToken == "" {
			if tokens.Message != "authorization_pending" && tokens.Message != "slow_down" {
				return Account{}, fmt.Errorf("authorization error: %s", tokens.Message)
			}
			continue
		}

		return ResolveAccount(tokens.AccessToken)
	}

	return Account{}, ErrDeviceCodeExpired
}

var ErrInvalidToken = errors.New("access token is no longer valid")

// ResolveAccount validates the token and fills in the owning user.
func ResolveAccount(accessToken string) (Account, error) {
	client, err := NewHelixClient(accessToken)
	if err != nil {
		return Account{}, err
	}

	valid, resp, err := client.ValidateToken(accessToken)
	if err != nil {
		return Account{}, fmt.Errorf("error validating token: %w", err)
	}
	if !valid || resp == nil || resp.Data.UserID == "" {
		return Account{}, ErrInvalidToken
	}

	return Account{ID: resp.Data.UserID, Login: resp.Data.Login, AccessToken: accessToken}, nil
}

// postForm decodes the JSON body into out even on error statuses, so the
// caller can inspect OAuth error messages.
func postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
