package configurator

import (
	"os"

	"github.com/google/uuid"

	"github.com/joshuafuller/pgmflow/internal/transport"
)

// sessionNamespace scopes the name-based UUIDs session ids are cut from.
var sessionNamespace = uuid.MustParse("6f0d3c62-5b19-4c3e-9a57-2f1f3b0c8d41")

var hostname = os.Hostname

// SessionID returns the host's global source identifier: the first six bytes
// of a SHA-1 name-based UUID over the hostname. It is stable for a host and
// falls back to "localhost" when the hostname is unavailable.
func SessionID() transport.SessionID {
	name, err := hostname()
	if err != nil || name == "" {
		name = "localhost"
	}
	return sessionIDFor(name)
}

func sessionIDFor(name string) transport.SessionID {
	u := uuid.NewSHA1(sessionNamespace, []byte(name))
	var id transport.SessionID
	copy(id[:], u[:len(id)])
	return id
}
