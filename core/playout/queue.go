package playout

// Queue 单个频道的待播队列，先进先出。
// 同一曲目在队列中最多出现一次，重复入队被忽略。
// 本身不做并发保护，由 Scheduler 串行访问。
type Queue struct {
	items   []int64
	pending map[int64]bool
}

// NewQueue 创建空队列
func NewQueue() *Queue {
	return &Queue{pending: make(map[int64]bool)}
}

// Push 入队，曲目已在队列中时返回 false
func (q *Queue) Push(trackID int64) bool {
	if q.pending[trackID] {
		return false
	}
	q.items = append(q.items, trackID)
	q.pending[trackID] = true
	return true
}

// Pop 弹出队首
func (q *Queue) Pop() (int64, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	trackID := q.items[0]
	q.items = q.items[1:]
	delete(q.pending, trackID)
	return trackID, true
}

// Peek 查看队首但不弹出
func (q *Queue) Peek() (int64, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0], true
}

// Len 队列长度
func (q *Queue) Len() int {
	return len(q.items)
}

// Contains 曲目是否在队列中等待
func (q *Queue) Contains(trackID int64) bool {
	return q.pending[trackID]
}
