package core

import (
	"context"
	"fmt"

	"unitledger/internal/units"
	"unitledger/pkg/domain"
)

const ownershipIndexRuleName = "ownership_index"

// OwnershipIndexRule keeps the owner records and the per-owner collections in
// agreement: every owner written in a change set must list the unit, and a
// previous owner must no longer list it.
func OwnershipIndexRule() domain.Rule {
	return ownershipIndexRule{units: units.NewStore()}
}

type ownershipIndexRule struct {
	units *units.Store
}

func (ownershipIndexRule) Name() string { return ownershipIndexRuleName }

func (r ownershipIndexRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	owners := r.units.Owners()
	for _, change := range changes {
		if change.Bucket != domain.BucketOwners {
			continue
		}
		if change.Action == domain.ActionDelete {
			res.Violations = append(res.Violations, ownershipViolation(change, "owner records are never removed"))
			continue
		}
		id, err := owners.DecodeKey(change.Key)
		if err != nil {
			return domain.Result{}, fmt.Errorf("%s: %w", ownershipIndexRuleName, err)
		}
		to, err := owners.DecodeValue(change.After)
		if err != nil {
			return domain.Result{}, fmt.Errorf("%s: %w", ownershipIndexRuleName, err)
		}
		listed, err := r.units.Owns(view, to, id)
		if err != nil {
			return domain.Result{}, err
		}
		if !listed {
			res.Violations = append(res.Violations, ownershipViolation(change, fmt.Sprintf("unit %d is owned by %s but missing from its collection", id, to)))
		}
		if change.Before == nil {
			continue
		}
		from, err := owners.DecodeValue(change.Before)
		if err != nil {
			return domain.Result{}, fmt.Errorf("%s: %w", ownershipIndexRuleName, err)
		}
		if from == to {
			continue
		}
		stale, err := r.units.Owns(view, from, id)
		if err != nil {
			return domain.Result{}, err
		}
		if stale {
			res.Violations = append(res.Violations, ownershipViolation(change, fmt.Sprintf("unit %d moved to %s but is still listed for %s", id, to, from)))
		}
	}
	return res, nil
}

func ownershipViolation(change domain.Change, message string) domain.Violation {
	return domain.Violation{
		Rule:     ownershipIndexRuleName,
		Severity: domain.SeverityBlock,
		Message:  message,
		Bucket:   change.Bucket,
		Key:      change.Key,
	}
}
