package git

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// Provider represents a Git provider
type Provider string

const (
	GitHub    Provider = "github"
	GitLab    Provider = "gitlab"
	Bitbucket Provider = "bitbucket"
)

// GetBaseURL returns the public host of a provider
func GetBaseURL(provider Provider) string {
	switch provider {
	case GitHub:
		return "github.com"
	case GitLab:
		return "gitlab.com"
	case Bitbucket:
		return "bitbucket.org"
	default:
		return "github.com"
	}
}

// Host returns the host serving a git source. Self-hosted instances are
// taken from HTMLURL; otherwise the provider's public host is used.
func Host(src deployment.GitSource) string {
	if src.HTMLURL != "" {
		if u, err := url.Parse(src.HTMLURL); err == nil && u.Host != "" {
			return u.Host
		}
		return strings.TrimSuffix(deployment.StripScheme(src.HTMLURL), "/")
	}
	return GetBaseURL(Provider(src.Type))
}

// BuildAuthURL builds an HTTPS Git URL for repository on host, carrying token when set
func BuildAuthURL(host, repository, token string, provider Provider) string {
	if token == "" {
		// Public repository
		return "https://" + host + "/" + repository + ".git"
	}

	switch provider {
	case Bitbucket:
		// Bitbucket uses x-token-auth
		return "https://x-token-auth:" + token + "@" + host + "/" + repository + ".git"
	case GitLab:
		return "https://oauth2:" + token + "@" + host + "/" + repository + ".git"
	}

	// GitHub uses x-access-token
	return "https://x-access-token:" + token + "@" + host + "/" + repository + ".git"
}

// BuildSSHURL builds an SSH Git URL, using the scheme form when a custom port is set
func BuildSSHURL(host, repository string, port int) string {
	host = strings.Split(host, ":")[0]
	if port > 0 && port != 22 {
		return "ssh://git@" + host + ":" + strconv.Itoa(port) + "/" + repository + ".git"
	}
	return "git@" + host + ":" + repository + ".git"
}
