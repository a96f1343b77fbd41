package capability

// Role tags a participant in a transition proposal.
type Role string

const (
	RoleLearner         Role = "learner"
	RoleTeacher         Role = "teacher"
	RoleMentor          Role = "mentor"
	RoleOperator        Role = "operator"
	RoleRegulator       Role = "regulator"
	RoleHost            Role = "host"
	RoleOrganicCPUOwner Role = "organic_cpu_owner"
	RoleSovereignKernel Role = "sovereign_kernel"
)

// RoleSet is the multiset of roles attached to a signed proposal plus the
// regulator quorum the deployment demands. Duplicates are meaningful:
// quorum is met by counting regulator signatures, not by mere presence.
type RoleSet struct {
	Roles                   []Role `json:"roles"`
	RequiredRegulatorQuorum uint8  `json:"required_regulator_quorum"`
}

// Count returns how many times r appears in the set.
func (rs RoleSet) Count(r Role) int {
	n := 0
	for _, have := range rs.Roles {
		if have == r {
			n++
		}
	}
	return n
}

// Has reports whether r appears at least once.
func (rs RoleSet) Has(r Role) bool {
	return rs.Count(r) > 0
}

// SovereigntySatisfied reports whether the composite sovereignty predicate
// holds: Host, OrganicCpuOwner, and SovereignKernel all present, and at
// least RequiredRegulatorQuorum regulator signatures counted.
func (rs RoleSet) SovereigntySatisfied() bool {
	return rs.Has(RoleHost) &&
		rs.Has(RoleOrganicCPUOwner) &&
		rs.Has(RoleSovereignKernel) &&
		rs.Count(RoleRegulator) >= int(rs.RequiredRegulatorQuorum)
}
