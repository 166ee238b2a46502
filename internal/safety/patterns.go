package safety

import (
	"fmt"
	"strings"

	"github.com/harrison/autopilot/internal/models"
)

// dangerousPatterns maps threat categories to command substrings that are
// never allowed to execute.
var dangerousPatterns = map[string][]string{
	"destructive_commands": {
		"rm -rf", "del /f", "format", "fdisk", "mkfs",
		"dd if=/dev/zero", "shred", "wipe",
	},
	"privilege_escalation": {
		"sudo", "su -", "runas", "chmod 777", "chown root",
	},
	"network_attacks": {
		"nmap", "nc -l", "netcat", "wireshark", "tcpdump",
	},
	"system_modification": {
		"/etc/passwd", "/etc/shadow", "registry edit", "services.msc", "msconfig",
	},
}

// sensitivePathPrefixes are locations no file operation may touch without
// explicit approval.
var sensitivePathPrefixes = []string{
	"/etc/",
	"/sys/",
	"/proc/",
	"/root/",
	`C:\Windows\System32\`,
}

// criticalFileFragments flag file operations against system account and
// boot configuration files.
var criticalFileFragments = []string{
	"passwd", "shadow", "hosts", "registry", "boot.ini",
}

// checkDangerousPatterns returns the matched category and pattern when the
// action matches a forbidden pattern, or empty strings when clean.
func checkDangerousPatterns(description, actionType string, params map[string]interface{}) (category, pattern string) {
	haystack := strings.ToLower(description)
	if cmd := stringParam(params, "command"); cmd != "" {
		haystack += " " + strings.ToLower(cmd)
	}

	for cat, patterns := range dangerousPatterns {
		for _, p := range patterns {
			if strings.Contains(haystack, p) {
				return cat, p
			}
		}
	}

	if actionType == "file_operation" {
		path := strings.ToLower(pathParam(params))
		op := strings.ToLower(stringParam(params, "operation"))
		if path != "" && (op == "write" || op == "delete" || op == "modify") {
			for _, fragment := range criticalFileFragments {
				if strings.Contains(path, fragment) {
					return "system_modification", fragment
				}
			}
		}
	}

	return "", ""
}

// checkPermission returns a non-empty reason when the action needs
// approval that has not been granted.
func checkPermission(actionType string, params map[string]interface{}, requireApprovalFor map[string]bool) string {
	if requireApprovalFor[actionType] {
		return fmt.Sprintf("action type %q requires approval", actionType)
	}

	path := pathParam(params)
	for _, prefix := range sensitivePathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return fmt.Sprintf("path %q is in a protected location", path)
		}
	}

	op := strings.ToLower(stringParam(params, "operation"))
	if (op == "delete" || op == "format") && strings.Contains(strings.ToLower(path), "important") {
		return fmt.Sprintf("destructive operation on protected file %q", path)
	}

	cmd := strings.ToLower(stringParam(params, "command"))
	if cmd != "" && hasDestructiveVerb(cmd) && hasForceFlag(cmd) {
		return fmt.Sprintf("forced destructive command %q requires approval", cmd)
	}

	return ""
}

func hasDestructiveVerb(cmd string) bool {
	for _, verb := range []string{"rm", "del", "format"} {
		for _, field := range strings.Fields(cmd) {
			if field == verb {
				return true
			}
		}
	}
	return false
}

func hasForceFlag(cmd string) bool {
	for _, flag := range []string{"-f", "-rf", "-fr", "--force", "-r", "--recursive"} {
		for _, field := range strings.Fields(cmd) {
			if field == flag {
				return true
			}
		}
	}
	return false
}

// AssessRisk grades an action before execution. The returned level is the
// highest applicable: a benign-looking type can still be high risk when
// its parameters touch system paths or destructive verbs.
func AssessRisk(description, actionType string, params map[string]interface{}) models.RiskLevel {
	risk := baseRisk(actionType)

	switch actionType {
	case "system_command":
		cmd := strings.ToLower(stringParam(params, "command"))
		if cmd == "" {
			cmd = strings.ToLower(description)
		}
		if containsWord(cmd, "rm", "del", "kill", "shutdown", "reboot", "format") {
			risk = maxRisk(risk, models.RiskHigh)
		} else if containsWord(cmd, "chmod", "chown", "mount", "umount", "service") {
			risk = maxRisk(risk, models.RiskMedium)
		}
	case "file_operation":
		op := strings.ToLower(stringParam(params, "operation"))
		path := strings.ToLower(pathParam(params))
		if op == "delete" || op == "format" || strings.Contains(path, "/etc/") {
			risk = maxRisk(risk, models.RiskHigh)
		} else if op == "write" || op == "modify" ||
			strings.Contains(path, "/usr/") || strings.Contains(path, "/var/") || strings.Contains(path, "/opt/") {
			risk = maxRisk(risk, models.RiskMedium)
		}
	}

	return risk
}

func baseRisk(actionType string) models.RiskLevel {
	switch actionType {
	case "system_command":
		return models.RiskHigh
	case "file_operation":
		return models.RiskMedium
	case "api_call", "memory_operation", "planning":
		return models.RiskLow
	default:
		return models.RiskLow
	}
}

func riskRank(r models.RiskLevel) int {
	switch r {
	case models.RiskLow:
		return 0
	case models.RiskMedium:
		return 1
	case models.RiskHigh:
		return 2
	case models.RiskCritical:
		return 3
	default:
		return 0
	}
}

func maxRisk(a, b models.RiskLevel) models.RiskLevel {
	if riskRank(b) > riskRank(a) {
		return b
	}
	return a
}

func containsWord(s string, words ...string) bool {
	fields := strings.Fields(s)
	for _, w := range words {
		for _, f := range fields {
			if f == w {
				return true
			}
		}
	}
	return false
}

func stringParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// pathParam returns the first path-like parameter found.
func pathParam(params map[string]interface{}) string {
	for _, key := range []string{"path", "file_path", "target"} {
		if v := stringParam(params, key); v != "" {
			return v
		}
	}
	return ""
}
