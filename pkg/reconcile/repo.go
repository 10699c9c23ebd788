package reconcile

import "strings"

// NormalizeRepoURL reduces a repository reference to its canonical
// lowercase "owner/repo" form. It accepts full URLs
// ("https://github.com/Owner/Repo.git"), host-prefixed paths
// ("github.com/owner/repo/tree/main") and bare "owner/repo" strings.
//
// Returns ok=false when the input does not contain an owner and a
// repository name. Callers must treat a failed normalization as "identity
// unknown", never as a mismatch.
func NormalizeRepoURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	// Strip the protocol.
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}

	s = strings.Trim(s, "/")
	if s == "" {
		return "", false
	}

	parts := strings.Split(s, "/")

	// Strip a leading host segment. Hosts are recognizable by the dot in
	// their name; a bare "owner/repo" has none.
	if strings.Contains(parts[0], ".") || strings.EqualFold(parts[0], "www") {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.EqualFold(parts[0], "www") {
		parts = parts[1:]
	}

	if len(parts) < 2 {
		return "", false
	}

	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")
	if owner == "" || repo == "" {
		return "", false
	}

	return strings.ToLower(owner + "/" + repo), true
}
