package vkapi

import (
	"fmt"
)

// LongPollFailedCode is the "failed" field of an a_check response.
type LongPollFailedCode int

const (
	LP_FAILED_TS_OUTDATED     LongPollFailedCode = 1
	LP_FAILED_KEY_EXPIRED     LongPollFailedCode = 2
	LP_FAILED_INFO_LOST       LongPollFailedCode = 3
	LP_FAILED_INVALID_VERSION LongPollFailedCode = 4
)

var longPollFailedDescription = map[LongPollFailedCode]string{
	LP_FAILED_TS_OUTDATED:     "event history outdated",
	LP_FAILED_KEY_EXPIRED:     "key expired",
	LP_FAILED_INFO_LOST:       "user information lost",
	LP_FAILED_INVALID_VERSION: "invalid version",
}

func (c LongPollFailedCode) Error() string {
	if name, ok := longPollFailedDescription[c]; ok {
		return name
	}
	return fmt.Sprintf("LongPollFailedCode(%d)", int(c))
}

type LongPollState int32

const (
	LongPollUninitialized LongPollState = iota
	LongPollAcquiring
	LongPollPolling
	LongPollReconnecting
	LongPollStopped
)

var longPollStateNames = map[LongPollState]string{
	LongPollUninitialized: "uninitialized",
	LongPollAcquiring:     "acquiring",
	LongPollPolling:       "polling",
	LongPollReconnecting:  "reconnecting",
	LongPollStopped:       "stopped",
}

func (s LongPollState) String() string {
	if name, ok := longPollStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LongPollState(%d)", int32(s))
}
