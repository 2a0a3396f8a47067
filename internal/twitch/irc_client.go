package twitch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
)

// IRCClient keeps the account present in the chat of the watched channel.
type IRCClient struct {
	*twitch.Client
	logger *log.Logger
}

func NewIRCClient(account Account, logger *log.Logger) *IRCClient {
	client := twitch.NewClient(account.Login, fmt.Sprintf("oauth:%s", account.AccessToken))
	client.OnConnect(func() {
		logger.Print("Connected to chat")
	})
	return &IRCClient{Client: client, logger: logger}
}

// Run keeps the chat connection up until ctx is done.
func (c *IRCClient) Run(ctx context.Context, reconnectDelay time.Duration) error {
	go func() {
		<-ctx.Done()
		c.Disconnect()
	}()

	for {
		err := c.Connect()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Printf("Chat connection lost: %v", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}
