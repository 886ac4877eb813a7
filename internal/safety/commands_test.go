package safety

import "testing"

func TestIsDestructiveCommand_AllPatterns(t *testing.T) {
	for _, pattern := range DestructiveCommandPatterns {
		if !IsDestructiveCommand(pattern) {
			t.Errorf("IsDestructiveCommand(%q) = false, want true", pattern)
		}
	}
}

func TestIsDestructiveCommand_CaseInsensitive(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"RM -RF /tmp", true},
		{"Rm -Rf /data", true},
		{"drop database users", true},
		{"DROP TABLE sessions", true},
		{"Truncate table logs", true},
	}
	for _, tt := range tests {
		if got := IsDestructiveCommand(tt.command); got != tt.want {
			t.Errorf("IsDestructiveCommand(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestIsDestructiveCommand_SafeCommands(t *testing.T) {
	safe := []string{
		"ls -la /tmp",
		"cat /var/log/syslog",
		"systemctl status nginx",
		"df -h",
		"ps aux",
		"docker ps",
		"zpool status",
		"zfs list",
		"free -m",
		"uptime",
		"journalctl -u nginx",
		"SELECT * FROM users",
	}
	for _, cmd := range safe {
		if IsDestructiveCommand(cmd) {
			t.Errorf("IsDestructiveCommand(%q) = true, want false (safe command)", cmd)
		}
	}
}

func TestIsDestructiveCommand_Empty(t *testing.T) {
	if IsDestructiveCommand("") {
		t.Error(`IsDestructiveCommand("") = true, want false`)
	}
}

func TestIsDestructiveCommand_EmbeddedPatterns(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"sudo rm -rf /var/cache/apt", true},
		{"bash -c 'dd if=/dev/zero of=/dev/sda'", true},
		{"echo y | mkfs.ext4 /dev/sdb1", true},
		{"zfs destroy tank/dataset", true},
		{"apt purge nginx", true},
		{"systemctl stop nginx", true},
		{"pkill -9 java", true},
		{"kubectl delete pod foo", true},
	}
	for _, tt := range tests {
		if got := IsDestructiveCommand(tt.command); got != tt.want {
			t.Errorf("IsDestructiveCommand(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}
