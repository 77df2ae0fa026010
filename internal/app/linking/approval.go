package linking

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ApproveFamily grants familyID access to elderID: the family record is
// marked approved, the id joins the elder's assigned set, and its pending
// request is removed. Approving an already-approved member succeeds.
func (s *Service) ApproveFamily(ctx context.Context, elderID, familyID primitive.ObjectID) error {
	const op = "approve family member"
	if _, err := s.requireElder(ctx, op, elderID); err != nil {
		return err
	}
	fam, err := s.requireFamily(ctx, op, familyID)
	if err != nil {
		return err
	}
	if !fam.LinkedTo(elderID) {
		return &NotFoundError{Kind: "family member", ID: familyID.Hex()}
	}

	err = s.tx.Run(ctx, func(ctx context.Context) error {
		if err := s.users.SetApproved(ctx, familyID, elderID, true); err != nil {
			if isNotFound(err) {
				// rejected or unlinked while we were checking
				return &NotFoundError{Kind: "family member", ID: familyID.Hex()}
			}
			return err
		}
		if err := s.elders.AddAssigned(ctx, elderID, familyID); err != nil {
			return err
		}
		_, err := s.pending.Remove(ctx, elderID, familyID)
		return err
	})
	if err != nil {
		return persistence(op, err)
	}

	s.log.Info("family member approved",
		zap.String("elder_id", elderID.Hex()),
		zap.String("family_id", familyID.Hex()))
	return nil
}

// RejectFamily resolves a pending request by deleting the family account.
// The request must still be pending, so a reject that loses a race with
// approve fails with NotFoundError and leaves the approval intact.
func (s *Service) RejectFamily(ctx context.Context, elderID, familyID primitive.ObjectID) error {
	const op = "reject family member"
	if _, err := s.requireElder(ctx, op, elderID); err != nil {
		return err
	}

	err := s.tx.Run(ctx, func(ctx context.Context) error {
		removed, err := s.pending.Remove(ctx, elderID, familyID)
		if err != nil {
			return err
		}
		if !removed {
			return &NotFoundError{Kind: "pending request", ID: familyID.Hex()}
		}
		_, err = s.users.Delete(ctx, familyID)
		return err
	})
	if err != nil {
		return persistence(op, err)
	}

	// The account never finished onboarding, so its credentials go too.
	if err := s.identities.Delete(ctx, familyID); err != nil {
		s.log.Warn("failed to remove identity of rejected family member",
			zap.String("family_id", familyID.Hex()),
			zap.Error(err))
	}

	s.log.Info("family member rejected",
		zap.String("elder_id", elderID.Hex()),
		zap.String("family_id", familyID.Hex()))
	return nil
}

// UnlinkRequest is the input to UnlinkFamily. FamilyName is only echoed in
// logs and responses.
type UnlinkRequest struct {
	ElderID    primitive.ObjectID
	FamilyID   primitive.ObjectID
	FamilyName string
}

// UnlinkFamily removes a family member from the elder's circle. The family
// account survives with its link cleared and can request a new link later.
// Unlinking twice is not an error.
func (s *Service) UnlinkFamily(ctx context.Context, req UnlinkRequest) error {
	const op = "unlink family member"
	if _, err := s.requireElder(ctx, op, req.ElderID); err != nil {
		return err
	}
	if _, err := s.requireFamily(ctx, op, req.FamilyID); err != nil {
		return err
	}

	var cleared bool
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		if err := s.elders.RemoveAssigned(ctx, req.ElderID, req.FamilyID); err != nil {
			return err
		}
		if _, err := s.pending.Remove(ctx, req.ElderID, req.FamilyID); err != nil {
			return err
		}
		var err error
		cleared, err = s.users.ClearElderLink(ctx, req.FamilyID, req.ElderID)
		return err
	})
	if err != nil {
		return persistence(op, err)
	}

	s.log.Info("family member unlinked",
		zap.String("elder_id", req.ElderID.Hex()),
		zap.String("family_id", req.FamilyID.Hex()),
		zap.String("family_name", strings.TrimSpace(req.FamilyName)),
		zap.Bool("changed", cleared))
	return nil
}
