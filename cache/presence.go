package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"MTCPlayer/model"

	"github.com/redis/go-redis/v9"
)

const (
	partyPresenceKey = "party:%s:presence:%s" // String: 心跳 key，值为 Presence JSON
	partyPresenceSet = "party:%s:online_peers" // Set: 在线 peer 集合
	partyChannelKey  = "party:%s"              // Pub/Sub 频道
	partyTTL         = 24 * time.Hour
	presenceTTL      = 60 * time.Second // 心跳过期时间 60秒
)

// PresenceStore 派对在线状态（心跳 key + 在线集合）
type PresenceStore struct {
	client *redis.Client
	keys   Keyspace
}

func NewPresenceStore(client *redis.Client, keys Keyspace) *PresenceStore {
	return &PresenceStore{client: client, keys: keys}
}

// Heartbeat 刷新 peer 心跳
func (s *PresenceStore) Heartbeat(ctx context.Context, room string, p model.Presence) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	setKey := s.keys.key(partyPresenceSet, room)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.keys.key(partyPresenceKey, room, p.PeerID), data, presenceTTL)
	pipe.SAdd(ctx, setKey, p.PeerID)
	pipe.Expire(ctx, setKey, partyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Remove 移除 peer 在线状态
func (s *PresenceStore) Remove(ctx context.Context, room, peer string) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.keys.key(partyPresenceKey, room, peer))
	pipe.SRem(ctx, s.keys.key(partyPresenceSet, room), peer)
	_, err := pipe.Exec(ctx)
	return err
}

// Active 返回心跳未过期的 peer，顺带清理过期成员
func (s *PresenceStore) Active(ctx context.Context, room string) ([]model.Presence, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	setKey := s.keys.key(partyPresenceSet, room)
	peers, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Presence, 0, len(peers))
	expired := make([]interface{}, 0)
	for _, peer := range peers {
		data, err := s.client.Get(ctx, s.keys.key(partyPresenceKey, room, peer)).Bytes()
		if err == redis.Nil {
			expired = append(expired, peer)
			continue
		}
		if err != nil {
			return nil, err
		}
		var p model.Presence
		if err := json.Unmarshal(data, &p); err != nil {
			expired = append(expired, peer)
			continue
		}
		out = append(out, p)
	}

	if len(expired) > 0 {
		s.client.SRem(ctx, setKey, expired...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out, nil
}
