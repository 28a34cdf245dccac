package gateway

import (
	"context"
	"encoding/json"
	"time"

	"DPanel/logger"
	"DPanel/service/bus"
	"DPanel/tools/ids"
)

// Publisher is the outbound sibling of the bridge: fire-and-forget
// dashboard commands to the bot process. The boolean result means "at
// least one listener was attached at publish time" — a presence
// heuristic, not a delivery acknowledgment, and deliberately kept that
// way. No retry, no queueing.
type Publisher struct {
	b       bus.Bus
	channel string
}

func NewPublisher(b bus.Bus, channel string) *Publisher {
	return &Publisher{b: b, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, typ, guildID, userID string, data any) bool {
	cmd := OutboundCommand{
		Type:      typ,
		GuildID:   guildID,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		ID:        ids.GenerateString(),
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		logger.Errorf("[publish] marshal cmd type=%s: %v", typ, err)
		return false
	}
	receivers, err := p.b.Publish(ctx, p.channel, raw)
	if err != nil {
		logger.Errorf("[publish] bus err type=%s guild=%s: %v", typ, guildID, err)
		return false
	}
	return receivers > 0
}
