package router

import (
	"sort"
	"strings"

	"github.com/voxop/voxop/internal/graph"
	"github.com/voxop/voxop/internal/policy"
)

// Category lexicons for argv sequences. Matching is on the command
// word after privilege-escalation prefixes are stripped, so
// "sudo rm -rf build" categorizes as a filesystem write.
var (
	filesystemWriteCommands = map[string]bool{
		"rm": true, "mv": true, "cp": true, "dd": true,
		"mkdir": true, "rmdir": true, "touch": true, "tee": true,
		"truncate": true, "shred": true, "ln": true,
		"chmod": true, "chown": true, "chgrp": true,
		"mkfs": true, "fdisk": true, "parted": true, "format": true,
		"unlink": true, "rename": true,
	}

	processControlCommands = map[string]bool{
		"kill": true, "killall": true, "pkill": true, "xkill": true,
		"shutdown": true, "reboot": true, "poweroff": true, "halt": true,
		"systemctl": true, "service": true, "init": true, "telinit": true,
	}

	networkingCommands = map[string]bool{
		"curl": true, "wget": true, "ssh": true, "scp": true,
		"sftp": true, "rsync": true, "nc": true, "ncat": true,
		"ping": true, "dig": true, "nslookup": true, "telnet": true,
		"ftp": true, "xdg-open": true,
	}

	// git is only a network actor for the remote-touching verbs.
	gitNetworkVerbs = map[string]bool{
		"push": true, "pull": true, "fetch": true, "clone": true,
		"remote": true,
	}

	credentialCommands = map[string]bool{
		"gpg": true, "pass": true, "secret-tool": true,
		"ssh-add": true, "ssh-keygen": true,
	}

	credentialPathFragments = []string{
		".ssh", ".gnupg", ".aws/credentials", ".netrc",
		"/etc/shadow", "/etc/sudoers", "id_rsa", "id_ed25519",
		".password-store", "keyring",
	}

	escalationPrefixes = map[string]bool{
		"sudo": true, "doas": true, "pkexec": true, "env": true,
		"nohup": true, "nice": true,
	}
)

// Derive maps a task to the capability categories its execution would
// exercise. GUI and injection tasks drive the user's input devices;
// command tasks are categorized by scanning their argv sequences.
// Generated tasks whose commands do not exist yet derive solely from
// the path; the produced sequence is categorized again before running.
func Derive(task *graph.Task) []policy.Capability {
	switch task.Path {
	case graph.PathGUI, graph.PathInjection:
		return []policy.Capability{policy.CapabilityInputAutomation}
	default:
		return CategorizeCommands(task.Commands)
	}
}

// CategorizeCommands scans argv sequences and returns the matched
// capability categories, deduplicated and sorted.
func CategorizeCommands(commands [][]string) []policy.Capability {
	seen := make(map[policy.Capability]bool)
	for _, argv := range commands {
		for _, cap := range categorize(argv) {
			seen[cap] = true
		}
	}

	caps := make([]policy.Capability, 0, len(seen))
	for cap := range seen {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

func categorize(argv []string) []policy.Capability {
	stripped := stripEscalation(argv)
	if len(stripped) == 0 {
		return nil
	}

	var caps []policy.Capability
	head := strings.ToLower(stripped[0])

	switch {
	case filesystemWriteCommands[head]:
		caps = append(caps, policy.CapabilityFilesystemWrite)
	case processControlCommands[head]:
		caps = append(caps, policy.CapabilityProcessControl)
	case networkingCommands[head]:
		caps = append(caps, policy.CapabilityNetworking)
	case head == "git" && len(stripped) > 1 && gitNetworkVerbs[strings.ToLower(stripped[1])]:
		caps = append(caps, policy.CapabilityNetworking)
	}

	if credentialCommands[head] {
		caps = append(caps, policy.CapabilityCredentialAccess)
	}
	for _, arg := range stripped {
		lowered := strings.ToLower(arg)
		for _, fragment := range credentialPathFragments {
			if strings.Contains(lowered, fragment) {
				caps = append(caps, policy.CapabilityCredentialAccess)
				return caps
			}
		}
	}
	return caps
}

func stripEscalation(argv []string) []string {
	for len(argv) > 0 && escalationPrefixes[strings.ToLower(argv[0])] {
		argv = argv[1:]
		// env VAR=x cmd: skip the assignments too.
		for len(argv) > 0 && strings.Contains(argv[0], "=") {
			argv = argv[1:]
		}
	}
	return argv
}
