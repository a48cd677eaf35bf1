package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"WaveFM/db"
	"WaveFM/model"

	"github.com/redis/go-redis/v9"
)

const (
	channelDetailsKey  = "channel:%d:details"      // String: ChannelDetails JSON
	channelPresenceKey = "channel:%d:presence:%s"  // String: 监听者心跳 key (channelID:listenerUUID)
	channelOnlineSet   = "channel:%d:listeners"    // Set: 在线监听者集合
	detailsTTL         = 5 * time.Minute
	presenceTTL        = 60 * time.Second // 心跳过期时间 60秒
)

// ChannelCache 频道缓存操作
type ChannelCache struct {
	client *redis.Client
}

// NewChannelCache 创建频道缓存
func NewChannelCache() *ChannelCache {
	return &ChannelCache{client: db.RedisClient}
}

// SetDetails 缓存频道快照
func (c *ChannelCache) SetDetails(ctx context.Context, details *model.ChannelDetails) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(channelDetailsKey, details.ID)
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal channel details: %w", err)
	}
	return c.client.Set(ctx, key, data, detailsTTL).Err()
}

// GetDetails 读取频道快照缓存，未命中时返回 nil
func (c *ChannelCache) GetDetails(ctx context.Context, channelID int64) (*model.ChannelDetails, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(channelDetailsKey, channelID)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var details model.ChannelDetails
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// UpdateListenerPresence 更新监听者心跳
func (c *ChannelCache) UpdateListenerPresence(ctx context.Context, channelID int64, listenerID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	presenceKey := fmt.Sprintf(channelPresenceKey, channelID, listenerID)
	onlineSetKey := fmt.Sprintf(channelOnlineSet, channelID)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, presenceKey, time.Now().UnixMilli(), presenceTTL)
	pipe.SAdd(ctx, onlineSetKey, listenerID)
	pipe.Expire(ctx, onlineSetKey, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveListenerPresence 移除监听者在线状态
func (c *ChannelCache) RemoveListenerPresence(ctx context.Context, channelID int64, listenerID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	presenceKey := fmt.Sprintf(channelPresenceKey, channelID, listenerID)
	onlineSetKey := fmt.Sprintf(channelOnlineSet, channelID)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, presenceKey)
	pipe.SRem(ctx, onlineSetKey, listenerID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetActiveListenerCount 统计心跳未过期的监听者数量
// 顺带清理已过期的集合成员
func (c *ChannelCache) GetActiveListenerCount(ctx context.Context, channelID int64) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	onlineSetKey := fmt.Sprintf(channelOnlineSet, channelID)
	listeners, err := c.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}

	var active int64
	for _, listenerID := range listeners {
		presenceKey := fmt.Sprintf(channelPresenceKey, channelID, listenerID)
		exists, err := c.client.Exists(ctx, presenceKey).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			active++
		} else {
			c.client.SRem(ctx, onlineSetKey, listenerID)
		}
	}
	return active, nil
}
