package vkapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultLongPollConfig, cfg.LongPoll)
	assert.Equal(t, MaxBatchSize, cfg.BatchSize)

	cfg = Config{LongPoll: LongPollConfig{Version: 3}}.withDefaults()
	assert.Equal(t, LongPollConfig{Wait: 25, Version: 3}, cfg.LongPoll)

	cfg = Config{LongPoll: LongPollConfig{Wait: 5, Mode: 2}}.withDefaults()
	assert.Equal(t, LongPollConfig{Wait: 5, Mode: 2, Version: 2}, cfg.LongPoll)
}

func TestNewLongPoll_FillsMissingWait(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthUser)
	lp := client.NewLongPoll(LongPollConfig{Mode: 2})
	assert.Equal(t, 25, lp.config.Wait)
	assert.Equal(t, 2, lp.Version())
}
