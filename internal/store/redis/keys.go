package redis

const (
	// KeyPrefixSession is the prefix for session record keys
	KeyPrefixSession = "linkup:session:"
	// KeyAllSessions is the key for the set of all session names
	KeyAllSessions = "linkup:sessions:all"
)

// SessionKey returns the Redis key for a session by name
func SessionKey(name string) string {
	return KeyPrefixSession + name
}

// AllSessionsKey returns the key for the set of all session names
func AllSessionsKey() string {
	return KeyAllSessions
}
