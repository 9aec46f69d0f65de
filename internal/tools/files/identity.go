package files

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// AgentHomeDir derives an agent's personal home directory deterministically
// from its public key: a fixed-width hex digest of the key nested under
// baseDir, so two runtimes given the same base directory and the same
// agent pubkey always agree on the same home directory without any lookup.
func AgentHomeDir(baseDir, pubkeyHex string) string {
	sum := sha256.Sum256([]byte(pubkeyHex))
	return filepath.Join(baseDir, "agents", hex.EncodeToString(sum[:])[:16])
}
