package broker

import (
	"encoding/hex"

	"github.com/bytedance/gopkg/lang/fastrand"
)

// generateClientID assigns an id to a client that connected with a
// zero-length client_id (MQTT-3.1.3-6), using fastrand rather than
// crypto/rand since the id only needs to be locally unique, not
// unguessable.
func generateClientID() string {
	var b [12]byte
	for i := range b {
		b[i] = byte(fastrand.Uint32n(256))
	}
	return "lighthouse-" + hex.EncodeToString(b[:])
}
