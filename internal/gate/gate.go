// Package gate decides which purchase tier a caller occupies. Evaluation is a
// pure function of the caller's role and document flags; it reads no session
// or database state and is recomputed on every catalog request.
package gate

import "medcanna/m/domain"

type Tier string

const (
	TierAnonymous            Tier = "anonymous"
	TierPrescriptionRequired Tier = "prescription_required"
	TierAnvisaRequired       Tier = "anvisa_required"
	TierPendingApproval      Tier = "pending_approval"
	TierUnlocked             Tier = "unlocked"
	TierAdmin                Tier = "admin"
	TierViewOnly             Tier = "view_only"
)

type Input struct {
	Authenticated           bool
	Role                    domain.Role
	HasUploadedPrescription bool
	HasAnvisaDocument       bool
	AdminApproved           bool
}

// InputFor builds the evaluator input for a loaded account. A nil user is an
// anonymous caller.
func InputFor(u *domain.User) Input {
	if u == nil {
		return Input{}
	}
	return Input{
		Authenticated:           true,
		Role:                    u.Role,
		HasUploadedPrescription: u.HasUploadedPrescription,
		HasAnvisaDocument:       u.HasAnvisaDocument,
		AdminApproved:           u.AdminApproved,
	}
}

type Decision struct {
	Tier         Tier `json:"tier"`
	PriceVisible bool `json:"price_visible"`
	CanAddToCart bool `json:"can_purchase"`
}

// Evaluate returns the caller's tier. Gates are checked in the order
// anonymous, role special case, prescription, ANVISA, approval, and the first
// unmet one decides. Unknown roles fail closed to the anonymous tier.
func Evaluate(in Input) Decision {
	if !in.Authenticated {
		return decide(TierAnonymous)
	}
	switch in.Role {
	case domain.RoleAdmin:
		return decide(TierAdmin)
	case domain.RoleVendor, domain.RoleDoctor, domain.RoleConsultant:
		return decide(TierViewOnly)
	case domain.RolePatient, domain.RoleClient:
		switch {
		case !in.HasUploadedPrescription:
			return decide(TierPrescriptionRequired)
		case !in.HasAnvisaDocument:
			return decide(TierAnvisaRequired)
		case !in.AdminApproved:
			return decide(TierPendingApproval)
		default:
			return decide(TierUnlocked)
		}
	default:
		return decide(TierAnonymous)
	}
}

func decide(t Tier) Decision {
	switch t {
	case TierAnonymous, TierPrescriptionRequired:
		return Decision{Tier: t}
	case TierAnvisaRequired, TierPendingApproval, TierViewOnly:
		return Decision{Tier: t, PriceVisible: true}
	case TierUnlocked, TierAdmin:
		return Decision{Tier: t, PriceVisible: true, CanAddToCart: true}
	}
	return Decision{Tier: TierAnonymous}
}
