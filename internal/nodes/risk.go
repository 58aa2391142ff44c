package nodes

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// riskPatterns classifies a command+args string by matching against the
// regex tables in spec §4.10, ported from
// original_source/backend/app/services/node_runtime.py's RISK_PATTERNS.
var riskPatterns = []struct {
	level    store.RiskLevel
	patterns []*regexp.Regexp
}{
	{store.RiskCritical, compileAll(
		`rm\s+-rf\s+/`,
		`mkfs\.`,
		`dd\s+if=.*of=/dev`,
		`:\(\)\s*\{\s*:\|\:\s*\&\s*\}`,
		`curl.*\|.*sh`,
		`wget.*\|.*sh`,
		`curl.*\|.*bash`,
	)},
	{store.RiskHigh, compileAll(
		`sudo\s+`,
		`rm\s+-rf`,
		`chmod\s+-R`,
		`chown\s+-R`,
		`docker\s+run\s+--privileged`,
		`kubectl\s+(delete|apply)`,
	)},
	{store.RiskMedium, compileAll(
		`git\s+(push|force)`,
		`scp\s+`,
		`rsync\s+.*--delete`,
		`docker\s+(build|run)`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// trustedCommands are safe for a "trusted" node to run unattended when
// classified as low risk (§4.10).
var trustedCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "grep": true,
	"find": true, "pwd": true, "echo": true, "git": true, "status": true,
	"diff": true, "log": true, "show": true, "python": true, "python3": true,
	"pip": true, "npm": true, "yarn": true, "node": true, "cd": true,
	"mkdir": true, "touch": true, "code": true, "cursor": true, "vim": true,
	"nano": true, "less": true, "more": true,
}

// assessRisk classifies command+args against the risk tables, defaulting
// to low when nothing matches.
func assessRisk(command, args string) store.RiskLevel {
	full := strings.ToLower(strings.TrimSpace(command + " " + args))
	for _, tier := range riskPatterns {
		for _, re := range tier.patterns {
			if re.MatchString(full) {
				return tier.level
			}
		}
	}
	return store.RiskLow
}

// checkCapabilities reports whether node_caps authorizes execution at the
// given risk level (§4.10).
func checkCapabilities(nodeCaps []string, risk store.RiskLevel) bool {
	if hasCap(nodeCaps, "*") || hasCap(nodeCaps, "admin") {
		return true
	}
	if risk == store.RiskCritical && !hasCap(nodeCaps, "exec.critical") {
		return false
	}
	if risk == store.RiskHigh && !hasCap(nodeCaps, "exec.high") {
		return false
	}
	if !hasCap(nodeCaps, "exec") && !hasCap(nodeCaps, "exec.*") {
		return false
	}
	return true
}

// canAutoApprove reports whether a request may bypass the approval queue,
// and if so, the rule that justified it.
func canAutoApprove(nodeCaps []string, command string, risk store.RiskLevel, autoApproveRules []string) (bool, string) {
	if hasCap(nodeCaps, "auto_approve") || hasCap(nodeCaps, "exec.auto_approve") {
		return true, "capability_auto_approve"
	}

	if hasCap(nodeCaps, "trusted") && risk == store.RiskLow {
		fields := strings.Fields(command)
		if len(fields) > 0 && trustedCommands[fields[0]] {
			return true, "trusted_command"
		}
	}

	for _, rule := range autoApproveRules {
		re, err := regexp.Compile("(?i)" + rule)
		if err != nil {
			continue
		}
		if re.MatchString(command) {
			return true, "rule:" + rule
		}
	}

	return false, ""
}

func hasCap(caps []string, want string) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}
