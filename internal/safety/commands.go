// Package safety holds command- and path-classification helpers shared by the
// trust gate's classifier and the self-healing runbook executor. None of it
// depends on any other internal package so both can import it without a cycle.
package safety

import "strings"

// DestructiveCommandPatterns is the canonical list of command substrings that
// must never be issued by a runbook step or accepted as an exec-shape
// read-only shortcut, regardless of trust score or override state.
var DestructiveCommandPatterns = []string{
	// File/disk destruction
	"rm -rf",
	"rm -r",
	"rm -f",
	"rmdir",
	"dd if=",
	"mkfs",
	"fdisk",
	"wipefs",
	"shred",
	"> /dev/sd",
	"format",
	"parted",
	// Filesystem destruction
	"zfs destroy",
	"zpool destroy",
	// Container/orchestration destruction
	"docker rm -f",
	"docker system prune",
	"docker volume rm",
	"docker image prune",
	"podman rm -f",
	"kubectl delete",
	// Package removal
	"apt remove",
	"apt purge",
	"apt autoremove",
	"yum remove",
	"dnf remove",
	"pacman -R",
	// Service disruption
	"systemctl stop",
	"systemctl disable",
	"service stop",
	"killall",
	"pkill",
	// Network disruption
	"iptables -F",
	"ip link delete",
	"ifdown",
	// System shutdown/reboot
	"shutdown",
	"poweroff",
	"reboot",
	"init 0",
	"init 6",
	// Database destruction
	"DROP DATABASE",
	"DROP TABLE",
	"TRUNCATE",
}

// IsDestructiveCommand reports whether command contains any pattern from
// DestructiveCommandPatterns, case-insensitively. The self-healing executor
// refuses to build a runbook step around such a command even if a runbook
// author tried to author one; the trust gate's classifier uses it to refuse a
// T1 exec-shape shortcut for anything that also looks destructive.
func IsDestructiveCommand(command string) bool {
	if command == "" {
		return false
	}
	lower := strings.ToLower(command)
	for _, pattern := range DestructiveCommandPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
