package event

import "sync"

// Handler 事件处理函数
type Handler func(payload interface{})

// Emitter 简单的同步发布订阅注册表。
// 同一事件名下的处理函数按注册顺序调用；不同事件名之间没有顺序保证。
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewEmitter 创建事件注册表
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]Handler)}
}

// Watch 订阅事件
func (e *Emitter) Watch(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], handler)
}

// Emit 同步触发事件，逐个调用当前全部订阅者
func (e *Emitter) Emit(name string, payload interface{}) {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers[name]))
	copy(handlers, e.handlers[name])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
}
