package core

import (
	"context"
	"fmt"

	"unitledger/internal/lineage"
	"unitledger/internal/units"
	"unitledger/pkg/domain"
)

const lineageIntegrityRuleName = "lineage_integrity"

// LineageIntegrityRule enforces parent pair constraints: both parents exist
// and differ, a child is never its own parent, and a recorded pair is never
// rewritten or removed.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{units: units.NewStore(), lineage: lineage.NewTracker()}
}

type lineageIntegrityRule struct {
	units   *units.Store
	lineage *lineage.Tracker
}

func (lineageIntegrityRule) Name() string { return lineageIntegrityRuleName }

func (r lineageIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	parents := r.lineage.ParentsMap()
	for _, change := range changes {
		if change.Bucket != domain.BucketParents {
			continue
		}
		child, err := parents.DecodeKey(change.Key)
		if err != nil {
			return domain.Result{}, fmt.Errorf("%s: %w", lineageIntegrityRuleName, err)
		}
		if change.Before != nil || change.Action == domain.ActionDelete {
			res.Violations = append(res.Violations, lineageViolation(change, fmt.Sprintf("unit %d already has a recorded parent pair", child)))
			continue
		}
		pair, err := parents.DecodeValue(change.After)
		if err != nil {
			return domain.Result{}, fmt.Errorf("%s: %w", lineageIntegrityRuleName, err)
		}
		if pair.A == pair.B {
			res.Violations = append(res.Violations, lineageViolation(change, fmt.Sprintf("unit %d lists parent %d twice", child, pair.A)))
		}
		if pair.Contains(child) {
			res.Violations = append(res.Violations, lineageViolation(change, fmt.Sprintf("unit %d references itself as a parent", child)))
		}
		for _, parent := range []domain.UnitID{pair.A, pair.B} {
			ok, err := r.units.Exists(view, parent)
			if err != nil {
				return domain.Result{}, err
			}
			if !ok {
				res.Violations = append(res.Violations, lineageViolation(change, fmt.Sprintf("unit %d references missing parent %d", child, parent)))
			}
		}
	}
	return res, nil
}

func lineageViolation(change domain.Change, message string) domain.Violation {
	return domain.Violation{
		Rule:     lineageIntegrityRuleName,
		Severity: domain.SeverityBlock,
		Message:  message,
		Bucket:   change.Bucket,
		Key:      change.Key,
	}
}
