package discord

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	gotils_strconv "github.com/savsgio/gotils/strconv"
)

const (
	discordEpoch = 1420070400000

	bitSize            = 64
	decimalBase        = 10
	maxInt64JsonLength = 22

	// Number of low bits of a snowflake that do not take part in
	// shard routing.
	shardRoutingShift = 22
)

var null = []byte("null")

// Snowflake is a discord ID. It is encoded as a string on the wire.
type Snowflake int64

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	if !bytes.Equal(b, null) {
		i, err := strconv.ParseInt(gotils_strconv.B2S(b[1:len(b)-1]), decimalBase, bitSize)
		if err != nil {
			return fmt.Errorf("failed to unmarshal snowflake: %w", err)
		}

		*s = Snowflake(i)
	}

	return nil
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	buff := make([]byte, 0, maxInt64JsonLength)
	buff = append(buff, '"')
	buff = strconv.AppendInt(buff, int64(s), decimalBase)
	buff = append(buff, '"')

	return buff, nil
}

func (s Snowflake) String() string {
	return strconv.FormatInt(int64(s), decimalBase)
}

func (s Snowflake) IsNil() bool {
	return s == 0
}

// Time returns the creation time embedded in the Snowflake.
func (s Snowflake) Time() time.Time {
	msec := (int64(s) >> shardRoutingShift) + discordEpoch

	return time.Unix(0, msec*int64(time.Millisecond))
}

// ShardID returns the shard that owns this guild ID for a given shard count.
func (s Snowflake) ShardID(shardCount int32) int32 {
	if shardCount <= 0 {
		return 0
	}

	return int32((int64(s) >> shardRoutingShift) % int64(shardCount))
}

// Int64 is an int64 that is encoded as a string on the wire, used for
// values that overflow double precision in other runtimes.
type Int64 int64

func (in *Int64) UnmarshalJSON(b []byte) error {
	if !bytes.Equal(b, null) {
		i, err := strconv.ParseInt(gotils_strconv.B2S(b[1:len(b)-1]), decimalBase, bitSize)
		if err != nil {
			return fmt.Errorf("failed to unmarshal int64: %w", err)
		}

		*in = Int64(i)
	}

	return nil
}

func (in Int64) MarshalJSON() ([]byte, error) {
	buff := make([]byte, 0, maxInt64JsonLength)
	buff = append(buff, '"')
	buff = strconv.AppendInt(buff, int64(in), decimalBase)
	buff = append(buff, '"')

	return buff, nil
}

func (in Int64) String() string {
	return strconv.FormatInt(int64(in), decimalBase)
}

// Timestamp is an ISO8601 timestamp as sent by discord.
type Timestamp string

func (t Timestamp) Parse() (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, string(t))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return parsed, nil
}
