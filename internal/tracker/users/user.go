package users

// Exercise is one logged activity entry, owned by exactly one user.
// The date is kept as the string given at append time (or the defaulted
// creation timestamp) and only interpreted at read time.
type Exercise struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Date        string `json:"date"`
}

type User struct {
	ID       string     `json:"_id"`
	Username string     `json:"username"`
	Log      []Exercise `json:"log"`
}
