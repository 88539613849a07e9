package broker

import "sync"

// NoOwner is the owner connection id of a user that is not logged in.
const NoOwner = -1

type LoginStatus int

const (
	LoginCreated LoginStatus = iota
	LoginOK
	LoginWrongPassword
	LoginAlreadyLoggedIn
	LoginMissingFields
)

func (s LoginStatus) String() string {
	switch s {
	case LoginCreated:
		return "CREATED"
	case LoginOK:
		return "OK"
	case LoginWrongPassword:
		return "WRONG_PASSWORD"
	case LoginAlreadyLoggedIn:
		return "ALREADY_LOGGED_IN"
	case LoginMissingFields:
		return "MISSING_FIELDS"
	default:
		return "UNKNOWN"
	}
}

// Success reports whether the login left the user logged in.
func (s LoginStatus) Success() bool {
	return s == LoginCreated || s == LoginOK
}

type user struct {
	mu       sync.Mutex
	password string
	loggedIn bool
	owner    int
}

// UserInfo is a snapshot of one user.
type UserInfo struct {
	Username          string `json:"username"`
	LoggedIn          bool   `json:"logged_in"`
	OwnerConnectionID int    `json:"owner_connection_id"`
}

// UserDirectory maps usernames to credentials and login state. Users are
// never removed.
type UserDirectory struct {
	users sync.Map
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{}
}

// TryLogin logs username in on connectionID, creating the user if the name
// is unseen. Concurrent attempts for the same name see exactly one
// LoginCreated.
func (d *UserDirectory) TryLogin(username, passcode string, connectionID int) LoginStatus {
	if username == "" {
		return LoginMissingFields
	}

	candidate := &user{password: passcode, loggedIn: true, owner: connectionID}
	actual, loaded := d.users.LoadOrStore(username, candidate)
	if !loaded {
		return LoginCreated
	}

	u := actual.(*user)
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.password != passcode {
		return LoginWrongPassword
	}
	if u.loggedIn {
		return LoginAlreadyLoggedIn
	}
	u.loggedIn = true
	u.owner = connectionID
	return LoginOK
}

// Logout logs username out if connectionID owns its session. It reports
// whether the state changed.
func (d *UserDirectory) Logout(username string, connectionID int) bool {
	value, ok := d.users.Load(username)
	if !ok {
		return false
	}

	u := value.(*user)
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.loggedIn || u.owner != connectionID {
		return false
	}
	u.loggedIn = false
	u.owner = NoOwner
	return true
}

func (d *UserDirectory) Lookup(username string) (UserInfo, bool) {
	value, ok := d.users.Load(username)
	if !ok {
		return UserInfo{}, false
	}
	return value.(*user).info(username), true
}

// Count returns the number of known users and how many are logged in.
func (d *UserDirectory) Count() (known, loggedIn int) {
	d.users.Range(func(key, value any) bool {
		known++
		if value.(*user).info(key.(string)).LoggedIn {
			loggedIn++
		}
		return true
	})
	return known, loggedIn
}

func (u *user) info(username string) UserInfo {
	u.mu.Lock()
	defer u.mu.Unlock()
	return UserInfo{Username: username, LoggedIn: u.loggedIn, OwnerConnectionID: u.owner}
}
