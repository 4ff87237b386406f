package domain

// User is a local account, read by the identity linker.
type User struct {
	ID    string  `db:"id"`
	Email string  `db:"email"`
	Name  *string `db:"name"`
}
