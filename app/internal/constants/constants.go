package constants

const SuperUserId = 1

func IsSuperUser(userId int64) bool {
	return userId == SuperUserId
}

type Role string

const RoleAdmin Role = "admin"
const RoleDeveloper Role = "developer"
const RoleViewer Role = "viewer"

var roleLevel = map[Role]int{
	RoleViewer:    1,
	RoleDeveloper: 1 << 2,
	RoleAdmin:     1 << 3,
}

func (r Role) Level() int {
	if v, ok := roleLevel[r]; ok {
		return v
	}
	return 0
}

// Capability is the authorization decision for one user against one
// project, computed once at the calling layer and handed to the
// orchestrator so the core never compares role names.
type Capability struct {
	CanDeploy      bool
	CanRollback    bool
	CanViewProject bool
}

func CapabilityFor(role Role) Capability {
	return Capability{
		CanDeploy:      role.Level() >= RoleDeveloper.Level(),
		CanRollback:    role.Level() >= RoleDeveloper.Level(),
		CanViewProject: role.Level() >= RoleViewer.Level(),
	}
}
