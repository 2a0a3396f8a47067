package app

import (
	"context"
	"log"
)

// ChatClient is the part of the IRC client the follower needs.
type ChatClient interface {
	Join(channels ...string)
	Depart(channel string)
}

// ChatFollower sits in the chat of whichever channel is being watched.
type ChatFollower struct {
	chat   ChatClient
	state  *State
	joined string
	logger *log.Logger
}

func NewChatFollower(chat ChatClient, state *State) *ChatFollower {
	return &ChatFollower{chat: chat, state: state, logger: newLogger("chat")}
}

func (f *ChatFollower) Run(ctx context.Context) error {
	feed := f.state.WatchFeed()
	nw, version := feed.Load()

	for {
		f.follow(nw)

		var err error
		nw, version, err = feed.Wait(ctx, version)
		if err != nil {
			if f.joined != "" {
				f.chat.Depart(f.joined)
			}
			return err
		}
	}
}

func (f *ChatFollower) follow(nw NowWatched) {
	if nw.ChannelLogin == f.joined {
		return
	}
	if f.joined != "" {
		f.chat.Depart(f.joined)
		f.logger.Printf("Left %s", f.joined)
	}
	f.joined = nw.ChannelLogin
	if f.joined != "" {
		f.chat.Join(f.joined)
		f.logger.Printf("Joined %s", f.joined)
	}
}
