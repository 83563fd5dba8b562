package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const (
	channelCacheTTL  = 5 * time.Minute
	channelPageLimit = 200
)

type channelCache struct {
	sync.Mutex
	byName    map[string]string
	fetchedAt time.Time
}

func (n *Notifier) cachedChannels(ctx context.Context) (map[string]string, error) {
	n.channels.Lock()
	defer n.channels.Unlock()

	if n.channels.byName != nil && time.Since(n.channels.fetchedAt) < channelCacheTTL {
		return n.channels.byName, nil
	}

	byName := make(map[string]string)
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		Limit:           channelPageLimit,
		ExcludeArchived: true,
	}
	for {
		channels, cursor, err := n.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, ch := range channels {
			byName[strings.ToLower(ch.Name)] = ch.ID
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	n.channels.byName = byName
	n.channels.fetchedAt = time.Now()
	return byName, nil
}

// resolveChannelID accepts a channel ID or a channel name with or without the
// leading '#'. Names are looked up once and cached.
func (n *Notifier) resolveChannelID(ctx context.Context, channel string) (string, error) {
	val := strings.TrimSpace(channel)
	if val == "" {
		return "", fmt.Errorf("no slack channel configured")
	}
	if isLikelyChannelID(val) {
		return val, nil
	}

	byName, err := n.cachedChannels(ctx)
	if err != nil {
		log.Printf("slack resolve channel error name=%s: %v", val, err)
		return "", fmt.Errorf("listing slack channels: %w", err)
	}
	id, ok := byName[strings.ToLower(strings.TrimPrefix(val, "#"))]
	if !ok {
		return "", fmt.Errorf("slack channel %q not found", val)
	}
	log.Printf("slack resolve channel name=%s id=%s", val, id)
	return id, nil
}

func isLikelyChannelID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'C' && r != 'G' && r != 'D' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
