package discord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeMarshalJSON(t *testing.T) {
	data, err := Snowflake(175928847299117063).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"175928847299117063"`, string(data))
}

func TestSnowflakeUnmarshalJSON(t *testing.T) {
	var s Snowflake

	require.NoError(t, s.UnmarshalJSON([]byte(`"175928847299117063"`)))
	assert.Equal(t, Snowflake(175928847299117063), s)
}

func TestSnowflakeUnmarshalNull(t *testing.T) {
	s := Snowflake(42)

	require.NoError(t, s.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, Snowflake(42), s, "null leaves the value untouched")
}

func TestSnowflakeUnmarshalInvalid(t *testing.T) {
	var s Snowflake

	assert.Error(t, s.UnmarshalJSON([]byte(`"not a number"`)))
}

func TestSnowflakeTime(t *testing.T) {
	// The reference snowflake from the platform documentation.
	created := Snowflake(175928847299117063).Time().UTC()

	assert.Equal(t, 2016, created.Year())
	assert.Equal(t, time.April, created.Month())
	assert.Equal(t, 30, created.Day())
}

func TestSnowflakeShardID(t *testing.T) {
	assert.Equal(t, int32(3), Snowflake(7<<22).ShardID(4))
	assert.Equal(t, int32(0), Snowflake(7<<22).ShardID(0))
}

func TestInt64Codec(t *testing.T) {
	data, err := Int64(9223372036854775807).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"9223372036854775807"`, string(data))

	var in Int64

	require.NoError(t, in.UnmarshalJSON(data))
	assert.Equal(t, Int64(9223372036854775807), in)
}

func TestTimestampParse(t *testing.T) {
	parsed, err := Timestamp("2021-09-07T12:00:00Z").Parse()
	require.NoError(t, err)
	assert.Equal(t, 2021, parsed.Year())

	_, err = Timestamp("yesterday").Parse()
	assert.Error(t, err)
}

func TestMessagePartialUpdateApply(t *testing.T) {
	msg := Message{
		ID:        1,
		ChannelID: 2,
		Content:   "before",
		Pinned:    false,
	}

	content := "after"
	pinned := true

	partial := MessagePartialUpdate{
		ID:        1,
		ChannelID: 2,
		Content:   &content,
		Pinned:    &pinned,
	}

	partial.Apply(&msg)

	assert.Equal(t, "after", msg.Content)
	assert.True(t, msg.Pinned)

	// Nil fields leave the message untouched.
	assert.Equal(t, Snowflake(1), msg.ID)
	assert.Empty(t, msg.Author.Username)
}

func TestChannelIsThread(t *testing.T) {
	assert.True(t, (&Channel{Type: ChannelTypeGuildPublicThread}).IsThread())
	assert.True(t, (&Channel{Type: ChannelTypeGuildPrivateThread}).IsThread())
	assert.False(t, (&Channel{Type: ChannelTypeGuildText}).IsThread())
}
