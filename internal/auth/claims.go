package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	// TokenTypeSession is the User-Session token issued after phone verification.
	TokenTypeSession TokenType = "session"
	// TokenTypeOperator grants access to reporting endpoints.
	TokenTypeOperator TokenType = "operator"
)

// Claims are the only supported JWT claims shape for this service.
// Session tokens carry the verified number and use the JWT ID as the session
// id; operator tokens carry a Role and use Subject for the operator name.
type Claims struct {
	jwt.RegisteredClaims

	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
}
