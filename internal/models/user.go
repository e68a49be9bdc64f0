package models

// User is the caller a request is executed for.
// Authentication happens upstream; only the identity and its perms reach us.
type User struct {
	ID    int64
	Perms Perms
}

func (u User) Can(p Perm) bool {
	return u.Perms.Check(p)
}
