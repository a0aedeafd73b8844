package telemetry

import (
	"os"
	"strconv"

	"github.com/google/uuid"
)

// NewInstanceID returns an identifier for this process: hostname, pid and a
// random suffix.
func NewInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8]
}
