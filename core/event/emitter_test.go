package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitCallsHandlersInRegistrationOrder(t *testing.T) {
	emitter := NewEmitter()

	var order []int
	emitter.Watch("play", func(payload interface{}) {
		order = append(order, 1)
	})
	emitter.Watch("play", func(payload interface{}) {
		order = append(order, 2)
	})
	emitter.Watch("play", func(payload interface{}) {
		order = append(order, 3)
	})

	emitter.Emit("play", nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitDeliversPayload(t *testing.T) {
	emitter := NewEmitter()

	var got interface{}
	emitter.Watch("queued", func(payload interface{}) {
		got = payload
	})

	emitter.Emit("queued", int64(42))

	assert.Equal(t, int64(42), got)
}

func TestEmitUnknownEventIsNoop(t *testing.T) {
	emitter := NewEmitter()

	called := false
	emitter.Watch("play", func(payload interface{}) {
		called = true
	})

	emitter.Emit("preload", nil)

	assert.False(t, called)
}

func TestEmitKeepsEventNamesSeparate(t *testing.T) {
	emitter := NewEmitter()

	counts := make(map[string]int)
	emitter.Watch("a", func(payload interface{}) { counts["a"]++ })
	emitter.Watch("b", func(payload interface{}) { counts["b"]++ })

	emitter.Emit("a", nil)
	emitter.Emit("a", nil)
	emitter.Emit("b", nil)

	assert.Equal(t, 2, counts["a"])
	assert.Equal(t, 1, counts["b"])
}
