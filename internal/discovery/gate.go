package discovery

import "github.com/antigravity-dev/prospector/internal/corerrors"

// Gate is the single point of truth for "can we call the outside world
// right now". It is constructed once at startup from config and threaded
// through explicitly; no package-global flag exists to bypass it.
type Gate struct {
	MockExternal    bool
	ExternalEnabled bool
	Credentials     map[string]string
}

// providerRequiredCreds lists the credential keys each real (non-mock)
// provider needs present in Gate.Credentials.
var providerRequiredCreds = map[string][]string{
	"search_api": {"SEARCH_API_CLIENT_ID", "SEARCH_API_CLIENT_SECRET", "SEARCH_API_TOKEN_URL"},
	"llm":        {"ANTHROPIC_API_KEY"},
}

// CanCall reports whether providerKey may run against the real world. Mock
// mode always passes regardless of credentials. Deterministic/seed-list
// providers never touch the network and are not subject to this gate at
// all — CanCall simply has no entry for them and therefore allows them.
func (g *Gate) CanCall(providerKey string) error {
	if g == nil || g.MockExternal {
		return nil
	}
	required, gated := providerRequiredCreds[providerKey]
	if !gated {
		return nil
	}
	if !g.ExternalEnabled {
		return &corerrors.ExternalProviderConfigError{
			Provider: providerKey,
			Missing:  []string{"EXTERNAL_DISCOVERY_ENABLED"},
			Message:  "external discovery is disabled",
		}
	}
	var missing []string
	for _, key := range required {
		if g.Credentials[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &corerrors.ExternalProviderConfigError{
			Provider: providerKey,
			Missing:  missing,
			Message:  "missing provider credentials",
		}
	}
	return nil
}
