package safety

import "strings"

// ReadOnlyVerbPatterns is the strict allowlist of command prefixes that the
// classifier's exec-shape check (SPEC_FULL 4.1 step 2) accepts as T1
// exec_status regardless of tool table lookup. Anything not matched here
// falls through to the explicit tool tables.
var ReadOnlyVerbPatterns = []string{
	// File/system inspection
	"cat ", "head ", "tail ", "less ", "more ",
	"ls ", "ls", "ll ", "ll", "dir ",
	"find ", "locate ", "which ", "whereis ", "file ", "stat ", "wc ",

	// System info
	"df ", "df", "du ", "free", "free ", "uptime",
	"uname ", "uname", "hostname", "whoami", "id ", "id",
	"date", "env", "printenv",
	"lscpu", "lsmem", "lsblk", "lspci", "lsusb", "lsof",

	// Process inspection
	"ps ", "ps", "top -bn1", "top -b -n1", "pgrep ", "pidof ", "pstree",

	// Network inspection
	"netstat", "ss ", "ss",
	"ip addr", "ip a", "ip link", "ip route", "ip r",
	"ifconfig", "arp ", "arp",
	"ping -c", "traceroute", "tracepath", "dig ", "nslookup ", "host ", "getent ",

	// Logs and journals
	"journalctl", "dmesg", "last", "lastlog", "who", "w",

	// Service status (read-only)
	"systemctl status", "systemctl is-active", "systemctl is-enabled",
	"systemctl list-units", "systemctl list-timers",
	"service status", "service --status-all",

	// Version control (read-only)
	"git status", "git log", "git diff", "git show", "git branch", "git remote -v",

	// Container/orchestration read-only
	"docker ps", "docker images", "docker logs", "docker inspect",
	"docker stats", "docker top", "docker port",
	"docker network ls", "docker network inspect",
	"docker volume ls", "docker volume inspect",
	"docker info", "docker version",
	"kubectl get", "kubectl describe", "kubectl logs", "kubectl top",
	"kubectl cluster-info", "kubectl config view", "kubectl api-resources",

	// Package info (read-only)
	"apt list", "apt show", "apt-cache",
	"dpkg -l", "dpkg --list", "dpkg -s",
	"rpm -q", "rpm -qa",
	"yum list", "dnf list", "pacman -Q", "apk list",

	// Hardware/temperature
	"sensors", "smartctl", "nvme list", "nvme smart-log",
	"cat /proc/", "cat /sys/",
}

// safePipeTargets are commands that may follow a "|" without disqualifying an
// otherwise read-only pipeline, per the "harmless chaining noise" wording in
// SPEC_FULL 4.1 step 2.
var safePipeTargets = []string{
	"grep", "egrep", "fgrep",
	"awk", "sort", "uniq", "wc",
	"head", "tail", "cut", "tr",
	"less", "more", "jq", "yq", "column",
}

// IsReadOnlyExecShape reports whether command, once stripped of harmless
// chaining, matches the strict read-only verb allowlist. It does not
// consider the financial-keyword check; callers must run that first.
func IsReadOnlyExecShape(command string) bool {
	normalized := strings.TrimSpace(strings.ToLower(command))
	if normalized == "" {
		return false
	}

	if strings.Contains(command, "|") {
		for _, part := range strings.Split(command, "|") {
			part = strings.TrimSpace(part)
			if isSafePipeTarget(part) {
				continue
			}
			if !matchesReadOnlyPrefix(part) {
				return false
			}
		}
		return true
	}

	if strings.Contains(command, "&&") {
		for _, part := range strings.Split(command, "&&") {
			if !matchesReadOnlyPrefix(strings.TrimSpace(part)) {
				return false
			}
		}
		return true
	}

	return matchesReadOnlyPrefix(normalized)
}

func matchesReadOnlyPrefix(cmd string) bool {
	normalized := strings.TrimSpace(strings.ToLower(cmd))
	for _, pattern := range ReadOnlyVerbPatterns {
		if strings.HasPrefix(normalized, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func isSafePipeTarget(cmd string) bool {
	normalized := strings.TrimSpace(strings.ToLower(cmd))
	// sed is only safe without in-place editing.
	if strings.HasPrefix(normalized, "sed") {
		return !strings.Contains(normalized, "-i")
	}
	for _, pattern := range safePipeTargets {
		if strings.HasPrefix(normalized, pattern) {
			return true
		}
	}
	return false
}
