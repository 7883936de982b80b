// notify.go
//
// A research dataset access and desensitization service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of datashare.
// datashare is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// datashare is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with datashare.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package notify emits proposal lifecycle events for an external delivery
// service. Delivery failures never affect the state change that caused them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType names a lifecycle event.
type EventType string

const (
	ProposalCreated   EventType = "proposal.created"
	ProposalAmended   EventType = "proposal.amended"
	ProposalEvaluated EventType = "proposal.evaluated"
)

// Event is published after a committed proposal change.
type Event struct {
	Type       EventType `json:"type"`
	ProposalID string    `json:"proposalId"`
	ProjectID  string    `json:"projectId"`
	Recipients []string  `json:"recipients"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier publishes events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.log.Info("notification",
		zap.String("type", string(event.Type)),
		zap.String("proposal_id", event.ProposalID),
		zap.String("project_id", event.ProjectID),
		zap.Strings("recipients", event.Recipients),
		zap.String("status", event.Status),
	)
	return nil
}

// RedisNotifier publishes JSON events on a redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// NewRedisNotifierFromURL parses a redis:// URL.
func NewRedisNotifierFromURL(url, channel string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return NewRedisNotifier(redis.NewClient(opts), channel), nil
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// Close releases the redis connection pool.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Dispatch publishes event and logs, rather than returns, any failure.
func Dispatch(ctx context.Context, n Notifier, log *zap.Logger, event Event) {
	if n == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := n.Notify(ctx, event); err != nil {
		log.Warn("notification failed",
			zap.String("type", string(event.Type)),
			zap.String("proposal_id", event.ProposalID),
			zap.Error(err),
		)
	}
}
