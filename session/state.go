package session

// State is the authentication state of the process. It is a closed union:
// only Initializing, Authenticated and Unauthenticated implement it, and the
// token exists only inside Authenticated.
type State interface {
	state() // private method to ensure only our types implement this
	String() string
}

// Initializing is the state between process start and the end of Bootstrap.
type Initializing struct{}

func (Initializing) state()         {}
func (Initializing) String() string { return "initializing" }

// Authenticated holds the bearer token of the signed-in user.
type Authenticated struct {
	Token string
}

func (Authenticated) state()         {}
func (Authenticated) String() string { return "authenticated" }

// Unauthenticated means there is no usable credential.
type Unauthenticated struct{}

func (Unauthenticated) state()         {}
func (Unauthenticated) String() string { return "unauthenticated" }

// IsAuthenticated reports whether s carries a token.
func IsAuthenticated(s State) bool {
	_, ok := s.(Authenticated)
	return ok
}
