package methods

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.mau.fi/util/random"
)

var (
	randomIDMutex sync.Mutex
	lastRandomID  int64
)

// GenerateRandomID returns a random_id for messages.send. The server
// deduplicates sends with equal random_id, so consecutive calls never repeat.
func GenerateRandomID() int64 {
	randomIDMutex.Lock()
	defer randomIDMutex.Unlock()
	id := rand.Int63n(1<<31-1) + 1
	if id == lastRandomID {
		id = id%(1<<31-2) + 1
	}
	lastRandomID = id
	return id
}

func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// GenerateSecret returns a string usable as a Callback API secret key.
func GenerateSecret() string {
	return random.String(32)
}
