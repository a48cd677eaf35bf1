package channel

import (
	"context"
	"sync"

	"WaveFM/core/acquire"
	"WaveFM/core/library"
	"WaveFM/logger"
	"WaveFM/repository"
)

// Manager 按需激活频道：首次访问时从存储装配 Channel 并常驻内存，
// 之后的请求共享同一实例，保证每个频道只有一套播出状态。
type Manager struct {
	mu       sync.Mutex
	channels map[int64]*Channel

	lib         *library.Library
	channelRepo repository.ChannelRepository
	broadcaster Broadcaster
	acquirer    acquire.Acquirer
	concerts    ConcertLookup
}

// NewManager 创建频道管理器
func NewManager(lib *library.Library, channelRepo repository.ChannelRepository,
	broadcaster Broadcaster, acquirer acquire.Acquirer, concerts ConcertLookup) *Manager {
	return &Manager{
		channels:    make(map[int64]*Channel),
		lib:         lib,
		channelRepo: channelRepo,
		broadcaster: broadcaster,
		acquirer:    acquirer,
		concerts:    concerts,
	}
}

// Get 返回频道实例，不存在的频道返回 (nil, nil)
func (m *Manager) Get(ctx context.Context, channelID int64) (*Channel, error) {
	m.mu.Lock()
	if c, ok := m.channels[channelID]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	meta, err := m.channelRepo.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 并发激活时以先到的为准
	if c, ok := m.channels[channelID]; ok {
		return c, nil
	}

	c := New(meta, m.lib, m.channelRepo, m.broadcaster, m.acquirer, m.concerts)
	m.channels[channelID] = c

	logger.Info("channel activated",
		logger.Int64("channel", channelID),
		logger.String("name", meta.Name))
	return c, nil
}

// Active 当前已激活的频道数
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}
