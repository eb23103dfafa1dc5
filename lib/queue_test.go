package lib

import (
	"testing"

	"github.com/millpond-labs/millpond/lib/crypto"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() EngineConfig {
	return EngineConfig{
		MaxQueuedEnvelopes: 4,
		MaxTotalBytes:      1000,
		IndividualMaxSize:  8,
		DropPercentage:     25,
	}
}

func TestAddEnvelopeArrivalOrder(t *testing.T) {
	queue := NewEnvelopeQueue(testEngineConfig())
	// envelopes land in the order they arrive regardless of content
	for _, envelope := range []string{"b", "c", "a"} {
		recheck, err := queue.AddEnvelope([]byte(envelope))
		require.NoError(t, err)
		require.False(t, recheck)
	}
	it := queue.Iterator()
	defer it.Close()
	result := ""
	for ; it.Valid(); it.Next() {
		result += string(it.Key())
	}
	require.Equal(t, "bca", result)
	// the queue knows what it holds
	require.True(t, queue.Contains(crypto.HashString([]byte("c"))))
	require.False(t, queue.Contains(crypto.HashString([]byte("z"))))
	// a duplicate envelope is rejected
	_, err := queue.AddEnvelope([]byte("b"))
	require.Error(t, err)
	require.Equal(t, CodeEnvelopeFoundInQueue, err.Code())
	// an oversize envelope is rejected
	_, err = queue.AddEnvelope([]byte("way too big!!"))
	require.Error(t, err)
	require.Equal(t, CodeMaxEnvelopeSize, err.Code())
	require.Equal(t, 3, queue.Count())
	require.Equal(t, 3, queue.QueueBytes())
}

func TestAddEnvelopeDropsNewest(t *testing.T) {
	queue := NewEnvelopeQueue(testEngineConfig())
	// fill the queue up to its count limit
	for _, envelope := range []string{"a", "b", "c", "d"} {
		recheck, err := queue.AddEnvelope([]byte(envelope))
		require.NoError(t, err)
		require.False(t, recheck)
	}
	// the envelope that breaches the limit triggers a drop from the back
	recheck, err := queue.AddEnvelope([]byte("e"))
	require.NoError(t, err)
	require.True(t, recheck)
	// 25% of 5 plus one means the two newest were evicted
	require.Equal(t, 3, queue.Count())
	it := queue.Iterator()
	defer it.Close()
	result := ""
	for ; it.Valid(); it.Next() {
		result += string(it.Key())
	}
	require.Equal(t, "abc", result)
	// the evicted envelopes are no longer tracked
	require.False(t, queue.Contains(crypto.HashString([]byte("d"))))
	require.False(t, queue.Contains(crypto.HashString([]byte("e"))))
}

func TestAddEnvelopeByteLimit(t *testing.T) {
	config := testEngineConfig()
	config.MaxQueuedEnvelopes, config.MaxTotalBytes, config.DropPercentage = 100, 10, 50
	queue := NewEnvelopeQueue(config)
	// four byte envelopes fit twice under the ten byte cap
	for _, envelope := range []string{"aaaa", "bbbb"} {
		recheck, err := queue.AddEnvelope([]byte(envelope))
		require.NoError(t, err)
		require.False(t, recheck)
	}
	// the third breaches the byte cap and halves the queue from the back
	recheck, err := queue.AddEnvelope([]byte("cccc"))
	require.NoError(t, err)
	require.True(t, recheck)
	require.Equal(t, 1, queue.Count())
	require.Equal(t, 4, queue.QueueBytes())
	require.True(t, queue.Contains(crypto.HashString([]byte("aaaa"))))
}

func TestDeleteEnvelope(t *testing.T) {
	queue := NewEnvelopeQueue(testEngineConfig())
	for _, envelope := range []string{"a", "b", "c"} {
		_, err := queue.AddEnvelope([]byte(envelope))
		require.NoError(t, err)
	}
	// deleting the middle envelope preserves the order of the rest
	queue.DeleteEnvelope([]byte("b"))
	require.Equal(t, 2, queue.Count())
	require.Equal(t, 2, queue.QueueBytes())
	require.False(t, queue.Contains(crypto.HashString([]byte("b"))))
	// deleting an unknown envelope is a no-op
	queue.DeleteEnvelope([]byte("z"))
	require.Equal(t, 2, queue.Count())
	it := queue.Iterator()
	defer it.Close()
	result := ""
	for ; it.Valid(); it.Next() {
		result += string(it.Key())
	}
	require.Equal(t, "ac", result)
	// clear resets everything
	queue.Clear()
	require.Zero(t, queue.Count())
	require.Zero(t, queue.QueueBytes())
}

func TestGetEnvelopes(t *testing.T) {
	queue := NewEnvelopeQueue(testEngineConfig())
	for _, envelope := range []string{"aa", "bb", "cc"} {
		_, err := queue.AddEnvelope([]byte(envelope))
		require.NoError(t, err)
	}
	// the byte budget cuts the list off without skipping ahead
	got := queue.GetEnvelopes(5)
	require.Equal(t, [][]byte{[]byte("aa"), []byte("bb")}, got)
	// a large budget returns everything in arrival order
	got = queue.GetEnvelopes(1000)
	require.Equal(t, [][]byte{[]byte("aa"), []byte("bb"), []byte("cc")}, got)
}

func TestFailedEnvelopeCache(t *testing.T) {
	cache := NewFailedEnvelopeCache()
	// record two failures for different senders
	cache.Add("hash1", "addr1", []byte(`{"sequence":1}`), ErrInvalidAddress())
	cache.Add("hash2", "addr2", nil, ErrInvalidArgument())
	// lookup by hash
	failed, found := cache.Get("hash1")
	require.True(t, found)
	require.Equal(t, "addr1", failed.Address)
	require.Equal(t, CodeInvalidAddress, failed.Error.(ErrorI).Code())
	// lookup by sender address
	forAddress := cache.GetFailedForAddress("addr2")
	require.Len(t, forAddress, 1)
	require.Equal(t, "hash2", forAddress[0].Hash)
	// removal clears the entry
	cache.Remove("hash1")
	_, found = cache.Get("hash1")
	require.False(t, found)
}
