// Package config loads the cluster topology and Raft tunables. The
// cluster config file itself, and the act of reading it from a path
// given on the command line, are the "external collaborator" spec §1
// disclaims testing for; this package is the minimal generalization of
// the teacher's hardcoded config.Config into one loaded from disk, in
// the shape spec §6 requires (a JSON node_id -> "host:port" map).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Cluster is the static node_id -> "host:port" map, loaded once at
// startup (spec §6).
type Cluster map[uint64]string

// LoadCluster reads and parses a cluster config file.
func LoadCluster(path string) (Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read cluster file %s: %w", path, err)
	}

	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse cluster file %s: %w", path, err)
	}

	cluster := make(Cluster, len(raw))
	for idStr, addr := range raw {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("config: invalid node id %q: %w", idStr, err)
		}
		cluster[id] = addr
	}
	if len(cluster) == 0 {
		return nil, fmt.Errorf("config: cluster file %s defines no nodes", path)
	}
	return cluster, nil
}

// Tunables are the Raft timing and operational knobs, defaulted per
// spec §4.1 ("Election timer ... [150ms, 300ms] ... Heartbeat interval
// ... ≤ ⅓ of the minimum election timeout").
type Tunables struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	RPCTimeout         time.Duration
	ProposalTimeout    time.Duration
}

// DefaultTunables returns spec §4.1's defaults.
func DefaultTunables() Tunables {
	return Tunables{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		RPCTimeout:         50 * time.Millisecond,
		ProposalTimeout:    2 * time.Second,
	}
}

// Validate enforces spec §4.1's "heartbeat < election_min / 2" constraint.
func (t Tunables) Validate() error {
	if t.ElectionTimeoutMin <= 0 || t.ElectionTimeoutMax < t.ElectionTimeoutMin {
		return fmt.Errorf("config: election timeout bounds invalid: [%s, %s]", t.ElectionTimeoutMin, t.ElectionTimeoutMax)
	}
	if t.HeartbeatInterval*2 >= t.ElectionTimeoutMin {
		return fmt.Errorf("config: heartbeat interval %s must be < half of election minimum %s", t.HeartbeatInterval, t.ElectionTimeoutMin)
	}
	return nil
}
