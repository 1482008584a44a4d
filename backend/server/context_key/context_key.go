package contextKey

// key is unexported so no other package can collide with these context
// values.
type key int

const (
	// UserIDKey holds the authenticated user's ID hex string.
	UserIDKey key = iota
	// JwtErrorKey holds the token parsing error, if any.
	JwtErrorKey
	// TokenExpiredKey is set when the identity came from an expired
	// access token. Such an identity may only refresh, never read data.
	TokenExpiredKey
)
