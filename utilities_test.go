package skiff

import (
	"testing"

	"github.com/skiff-works/skiff/discord"
	"github.com/stretchr/testify/assert"
)

func TestReturnRangeInt32(t *testing.T) {
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 6, 7}, returnRangeInt32("0-4,6-7", 8))
}

func TestReturnRangeInt32Single(t *testing.T) {
	assert.Equal(t, []int32{0}, returnRangeInt32("0", 8))
}

func TestReturnRangeInt32Empty(t *testing.T) {
	assert.Empty(t, returnRangeInt32("", 8))
}

func TestReturnRangeInt32OutOfBounds(t *testing.T) {
	// Entries at or past max are dropped.
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 6, 7}, returnRangeInt32("0-4,6-7,8", 8))
}

func TestRandomHex(t *testing.T) {
	assert.Len(t, randomHex(16), 32)
	assert.Empty(t, randomHex(0))
}

func TestUnmarshalPayload(t *testing.T) {
	payload := &discord.GatewayPayload{
		Data: []byte(`{"heartbeat_interval":41250}`),
	}

	var hello discord.Hello

	assert.NoError(t, unmarshalPayload(payload, &hello))
	assert.Equal(t, int32(41250), hello.HeartbeatInterval)
}
