package shared

// Role is the resolved authority level of a caller. How a role is derived
// from directory membership is outside the engine; callers arrive with one
// of these values already resolved.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleReviewer Role = "REVIEWER"
	RoleHQ       Role = "HQ"
	RoleFinance  Role = "FINANCE"
	RoleAdmin    Role = "ADMIN"
)

var roleRank = map[Role]int{
	RoleEmployee: 0,
	RoleReviewer: 1,
	RoleHQ:       2,
	RoleFinance:  3,
	RoleAdmin:    4,
}

// AtLeast reports whether the role carries at least the authority of min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// CanReview reports whether the role may act as a reviewer at all.
func (r Role) CanReview() bool {
	return r.AtLeast(RoleReviewer)
}

// Actor identifies the caller of an engine operation together with its
// resolved role. Actor ids share the employee id space.
type Actor struct {
	ID   int64
	Role Role
}
