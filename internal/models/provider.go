package models

// AuthMethod describes a credential-acquisition mechanism supported by a
// provider variant.
type AuthMethod string

const (
	AuthOAuth    AuthMethod = "oauth"
	AuthCookie   AuthMethod = "cookie"
	AuthCli      AuthMethod = "cli"
	AuthAPIToken AuthMethod = "api_token"
	AuthNone     AuthMethod = "none"
)

// ProviderMetadata is the static description of a provider variant.
// AuthMethods are ordered by preference.
type ProviderMetadata struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	SupportsLogin bool         `json:"supportsLogin"`
	AuthMethods   []AuthMethod `json:"authMethods"`
}

// SupportsAuth reports whether the variant lists the given method.
func (m ProviderMetadata) SupportsAuth(method AuthMethod) bool {
	for _, am := range m.AuthMethods {
		if am == method {
			return true
		}
	}
	return false
}
