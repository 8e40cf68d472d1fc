package authz

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

func IsAdmin(role string) bool {
	return role == RoleAdmin
}
