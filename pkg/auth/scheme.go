package auth

import (
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// RequirementSet maps security scheme names to required scopes. All schemes
// of one set must be satisfied together; a list of sets is an OR.
type RequirementSet map[string][]string

// Names returns the scheme names of the set in lexical order.
func (r RequirementSet) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the set as "a AND b (scopes: x, y)".
func (r RequirementSet) String() string {
	parts := make([]string, 0, len(r))
	for _, name := range r.Names() {
		if scopes := r[name]; len(scopes) > 0 {
			parts = append(parts, name+" (scopes: "+strings.Join(scopes, ", ")+")")
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " AND ")
}

// Scheme is one security scheme declared by the document. The set of
// implementations is closed.
type Scheme interface {
	Type() string
	isScheme()
}

// APIKeyScheme sends a key in a header, query parameter or cookie.
type APIKeyScheme struct {
	Name string
	In   string
}

// HTTPBearerScheme sends "Authorization: Bearer <token>".
type HTTPBearerScheme struct{}

// HTTPBasicScheme sends "Authorization: Basic <base64(user:pass)>".
type HTTPBasicScheme struct{}

// OAuth2Scheme acquires a bearer token with the client-credentials grant.
// The password flow's token URL is used when no client-credentials flow is
// declared.
type OAuth2Scheme struct {
	ClientCredentialsTokenURL string
	PasswordTokenURL          string
	Scopes                    []string
}

// OpenIDConnectScheme sends a pre-issued bearer token.
type OpenIDConnectScheme struct {
	URL string
}

// UnsupportedScheme is any scheme this server cannot satisfy, such as an
// http scheme other than bearer or basic.
type UnsupportedScheme struct {
	Kind   string
	Detail string
}

func (APIKeyScheme) Type() string        { return "apiKey" }
func (HTTPBearerScheme) Type() string    { return "http" }
func (HTTPBasicScheme) Type() string     { return "http" }
func (OAuth2Scheme) Type() string        { return "oauth2" }
func (OpenIDConnectScheme) Type() string { return "openIdConnect" }
func (s UnsupportedScheme) Type() string { return s.Kind }

func (APIKeyScheme) isScheme()        {}
func (HTTPBearerScheme) isScheme()    {}
func (HTTPBasicScheme) isScheme()     {}
func (OAuth2Scheme) isScheme()        {}
func (OpenIDConnectScheme) isScheme() {}
func (UnsupportedScheme) isScheme()   {}

// TokenURL returns the URL used for token acquisition, or "".
func (s OAuth2Scheme) TokenURL() string {
	if s.ClientCredentialsTokenURL != "" {
		return s.ClientCredentialsTokenURL
	}
	return s.PasswordTokenURL
}

// SchemesFromDocument converts components.securitySchemes.
func SchemesFromDocument(doc *openapi3.T) map[string]Scheme {
	out := make(map[string]Scheme)
	if doc == nil || doc.Components == nil {
		return out
	}
	for name, ref := range doc.Components.SecuritySchemes {
		if ref == nil || ref.Value == nil {
			continue
		}
		out[name] = schemeFrom(ref.Value)
	}
	return out
}

func schemeFrom(s *openapi3.SecurityScheme) Scheme {
	switch s.Type {
	case "apiKey":
		return APIKeyScheme{Name: s.Name, In: s.In}
	case "http":
		switch strings.ToLower(s.Scheme) {
		case "bearer":
			return HTTPBearerScheme{}
		case "basic":
			return HTTPBasicScheme{}
		}
		return UnsupportedScheme{Kind: "http", Detail: s.Scheme}
	case "oauth2":
		scheme := OAuth2Scheme{}
		if s.Flows != nil {
			if f := s.Flows.ClientCredentials; f != nil {
				scheme.ClientCredentialsTokenURL = f.TokenURL
				scheme.Scopes = scopeNames(f.Scopes)
			}
			if f := s.Flows.Password; f != nil {
				scheme.PasswordTokenURL = f.TokenURL
				if scheme.Scopes == nil {
					scheme.Scopes = scopeNames(f.Scopes)
				}
			}
		}
		return scheme
	case "openIdConnect":
		return OpenIDConnectScheme{URL: s.OpenIdConnectUrl}
	}
	return UnsupportedScheme{Kind: s.Type}
}

func scopeNames(scopes map[string]string) []string {
	if len(scopes) == 0 {
		return nil
	}
	names := make([]string, 0, len(scopes))
	for name := range scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemeDescriptor is the serialized form of a Scheme.
type SchemeDescriptor struct {
	Type                      string   `json:"type" yaml:"type"`
	Scheme                    string   `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Name                      string   `json:"name,omitempty" yaml:"name,omitempty"`
	In                        string   `json:"in,omitempty" yaml:"in,omitempty"`
	ClientCredentialsTokenURL string   `json:"clientCredentialsTokenUrl,omitempty" yaml:"clientCredentialsTokenUrl,omitempty"`
	PasswordTokenURL          string   `json:"passwordTokenUrl,omitempty" yaml:"passwordTokenUrl,omitempty"`
	Scopes                    []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	OpenIDConnectURL          string   `json:"openIdConnectUrl,omitempty" yaml:"openIdConnectUrl,omitempty"`
}

// Describe converts a Scheme to its descriptor.
func Describe(s Scheme) SchemeDescriptor {
	switch v := s.(type) {
	case APIKeyScheme:
		return SchemeDescriptor{Type: "apiKey", Name: v.Name, In: v.In}
	case HTTPBearerScheme:
		return SchemeDescriptor{Type: "http", Scheme: "bearer"}
	case HTTPBasicScheme:
		return SchemeDescriptor{Type: "http", Scheme: "basic"}
	case OAuth2Scheme:
		return SchemeDescriptor{
			Type:                      "oauth2",
			ClientCredentialsTokenURL: v.ClientCredentialsTokenURL,
			PasswordTokenURL:          v.PasswordTokenURL,
			Scopes:                    v.Scopes,
		}
	case OpenIDConnectScheme:
		return SchemeDescriptor{Type: "openIdConnect", OpenIDConnectURL: v.URL}
	case UnsupportedScheme:
		return SchemeDescriptor{Type: v.Kind, Scheme: v.Detail}
	}
	return SchemeDescriptor{}
}

// ToScheme converts the descriptor back.
func (d SchemeDescriptor) ToScheme() Scheme {
	return schemeFrom(d.openAPI())
}

func (d SchemeDescriptor) openAPI() *openapi3.SecurityScheme {
	s := &openapi3.SecurityScheme{
		Type:             d.Type,
		Scheme:           d.Scheme,
		Name:             d.Name,
		In:               d.In,
		OpenIdConnectUrl: d.OpenIDConnectURL,
	}
	if d.Type == "oauth2" {
		s.Flows = &openapi3.OAuthFlows{}
		scopes := make(map[string]string, len(d.Scopes))
		for _, name := range d.Scopes {
			scopes[name] = ""
		}
		if d.ClientCredentialsTokenURL != "" {
			s.Flows.ClientCredentials = &openapi3.OAuthFlow{TokenURL: d.ClientCredentialsTokenURL, Scopes: scopes}
		}
		if d.PasswordTokenURL != "" {
			s.Flows.Password = &openapi3.OAuthFlow{TokenURL: d.PasswordTokenURL, Scopes: scopes}
		}
	}
	return s
}

// DescribeAll converts a scheme map for serialization.
func DescribeAll(schemes map[string]Scheme) map[string]SchemeDescriptor {
	out := make(map[string]SchemeDescriptor, len(schemes))
	for name, s := range schemes {
		out[name] = Describe(s)
	}
	return out
}

// SchemesFromDescriptors is the inverse of DescribeAll.
func SchemesFromDescriptors(descs map[string]SchemeDescriptor) map[string]Scheme {
	out := make(map[string]Scheme, len(descs))
	for name, d := range descs {
		out[name] = d.ToScheme()
	}
	return out
}
