package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHolder(t *testing.T) {
	cfg := DefaultConfig()
	h := NewHolder(cfg, "/etc/drivegram/config.toml")

	require.NotNil(t, h)
	assert.Equal(t, cfg, h.Config())
	assert.Equal(t, "/etc/drivegram/config.toml", h.Path())
}

func TestHolder_UpdateChangesLimits(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/tmp/config.toml")
	assert.Equal(t, int64(50*mebibyte), h.Limits().LargeFileThreshold)

	cfg2 := DefaultConfig()
	cfg2.Transfers.LargeFileThreshold = "10MiB"
	h.Update(cfg2)

	assert.Equal(t, int64(10*mebibyte), h.Limits().LargeFileThreshold)
}

func TestHolder_ConcurrentReadWrite(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/tmp/config.toml")

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				assert.NotNil(t, h.Config())
			}
		}()
	}

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				h.Update(DefaultConfig())
			}
		}()
	}

	wg.Wait()
}
