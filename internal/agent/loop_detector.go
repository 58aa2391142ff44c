package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Repeat thresholds before the loop is flagged to the model (warning,
// injected as a user message so it can change strategy) or aborted
// (critical, the run gives up rather than burning the rest of its
// iteration budget on the same dead end).
const (
	loopWarnThreshold     = 3
	loopCriticalThreshold = 5
)

// toolLoopState detects an agent stuck repeatedly calling the same tool
// with the same arguments — the zero value is ready to use.
type toolLoopState struct {
	lastName     string
	lastArgsHash string
	repeatCount  int
}

// record hashes name+args and bumps the repeat counter when it matches
// the previous call; it returns the hash for recordResult/detect to use.
func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	b, _ := json.Marshal(args)
	sum := sha256.Sum256(append([]byte(name+"|"), b...))
	hash := hex.EncodeToString(sum[:])

	if name == s.lastName && hash == s.lastArgsHash {
		s.repeatCount++
	} else {
		s.lastName = name
		s.lastArgsHash = hash
		s.repeatCount = 1
	}
	return hash
}

// recordResult exists so future detectors can compare tool output across
// repeats (e.g. "same args but the answer changed isn't a loop"); not
// used yet beyond being a recorded observation point.
func (s *toolLoopState) recordResult(argsHash, result string) {}

// detect reports whether the current call is part of a loop worth
// surfacing. level is "" (no loop), "warning", or "critical".
func (s *toolLoopState) detect(name, argsHash string) (level, msg string) {
	if name != s.lastName || argsHash != s.lastArgsHash {
		return "", ""
	}
	switch {
	case s.repeatCount >= loopCriticalThreshold:
		return "critical", fmt.Sprintf("tool %q called %d times with identical arguments and no progress", name, s.repeatCount)
	case s.repeatCount >= loopWarnThreshold:
		return "warning", fmt.Sprintf("You've called %s with the same arguments %d times in a row. Try a different approach instead of repeating it.", name, s.repeatCount)
	default:
		return "", ""
	}
}
