package router

import "time"

// leaderWallClock reads the local clock once, just before proposing, for
// SendMessage's display-ordering timestamp (spec §3). A non-leader's
// reading is discarded with its rejected proposal, so only a leader's
// reading reaches the log; the value becomes part of the command, so
// every replica applies the identical timestamp regardless of when it
// gets there — the state machine itself never touches the wall clock.
func leaderWallClock() int64 {
	return time.Now().UnixNano()
}
