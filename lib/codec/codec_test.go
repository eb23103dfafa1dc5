package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type wireString string

func (w wireString) MarshalBinary() ([]byte, error) { return []byte(w), nil }
func (w *wireString) UnmarshalBinary(data []byte) error {
	*w = wireString(data)
	return nil
}

func TestWireRoundTrip(t *testing.T) {
	cdc := &Wire{}
	bz, err := cdc.Marshal(wireString("mill"))
	require.NoError(t, err)
	got := new(wireString)
	require.NoError(t, cdc.Unmarshal(bz, got))
	require.Equal(t, wireString("mill"), *got)
}

func TestWireRejectsUnknownTypes(t *testing.T) {
	cdc := &Wire{}
	_, err := cdc.Marshal(42)
	require.Error(t, err)
	require.Error(t, cdc.Unmarshal([]byte{1}, 42))
}
