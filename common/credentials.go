package common

// Credentials holds everything needed to authenticate against a managed host.
type Credentials struct {
	User          string
	Password      string
	KeyPassphrase string
	SudoPassword  string
}
