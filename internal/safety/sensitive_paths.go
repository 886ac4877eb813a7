package safety

import (
	"path/filepath"
	"strings"
)

// IsSensitivePath returns (true, reason) when a file path is likely to
// contain secrets. The classifier's tool-table lookup consults this to push
// a write against such a path up to T3 regardless of extension.
func IsSensitivePath(path string) (bool, string) {
	if path == "" {
		return false, ""
	}

	clean := filepath.Clean(path)
	lower := strings.ToLower(clean)

	switch lower {
	case "/etc/shadow", "/etc/gshadow", "/etc/sudoers":
		return true, "system credential file"
	}

	if strings.Contains(lower, "/.ssh/") {
		return true, "ssh key/config directory"
	}
	for _, name := range []string{"id_rsa", "id_ed25519", "authorized_keys", "known_hosts"} {
		if strings.HasSuffix(lower, "/"+name) {
			return true, "ssh key material"
		}
	}

	for _, prefix := range []string{"/run/secrets/", "/var/run/secrets/", "/etc/secrets/", "/secrets/"} {
		if strings.HasPrefix(lower, prefix) {
			return true, "secrets directory"
		}
	}

	if strings.HasPrefix(lower, "/proc/") && strings.HasSuffix(lower, "/environ") {
		return true, "process environment file"
	}

	for _, ext := range []string{".pem", ".key", ".p12", ".pfx"} {
		if strings.HasSuffix(lower, ext) {
			return true, "private key or certificate file"
		}
	}

	for _, base := range []string{".env", ".npmrc", ".pypirc", ".netrc", ".aws/credentials"} {
		if strings.HasSuffix(lower, "/"+base) {
			return true, "credentials dotfile"
		}
	}

	return false, ""
}
