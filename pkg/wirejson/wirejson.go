// Package wirejson funnels every hot-path gateway payload through a single
// codec so the JSON implementation can be swapped in one place.
package wirejson

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func UnmarshalReader(reader io.Reader, v any) error {
	return json.NewDecoder(reader).Decode(v)
}

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func MarshalToWriter(writer io.Writer, v any) error {
	return json.NewEncoder(writer).Encode(v)
}
