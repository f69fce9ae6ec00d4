package rpc

type AuthType string

const (
	AuthTypeHeader AuthType = "header"
	AuthTypeQuery  AuthType = "query"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
)

// AuthConfig holds authentication configuration. For basic auth Key is the
// username and Value the password.
type AuthConfig struct {
	Type  AuthType `json:"type"  yaml:"type"`
	Key   string   `json:"key"   yaml:"key"`
	Value string   `json:"value" yaml:"value"`
}
