package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"unitledger/internal/core"
	"unitledger/pkg/domain"
)

func parseUnitID(raw string) (domain.UnitID, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unit id %q: must be an unsigned 32-bit integer", raw)
	}
	return domain.UnitID(n), nil
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Mint a unit owned by the acting account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				unit, err := svc.Create(cmd.Context(), caller, core.CreateOptions{})
				if err != nil {
					return err
				}
				return render(a.out, a.output, newUnitView(unit, caller))
			})
		},
	}
}

func newTransferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <unit-id> <recipient>",
		Short: "Move a unit from the acting account to recipient",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			id, err := parseUnitID(args[0])
			if err != nil {
				return err
			}
			to := domain.AccountID(args[1])
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				if err := svc.Transfer(cmd.Context(), caller, to, id, core.TransferOptions{}); err != nil {
					return err
				}
				return render(a.out, a.output, transferView{ID: id, From: caller, To: to})
			})
		},
	}
}

func newBreedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "breed <parent-a> <parent-b>",
		Short: "Breed two units into a new unit owned by the acting account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			parentA, err := parseUnitID(args[0])
			if err != nil {
				return err
			}
			parentB, err := parseUnitID(args[1])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				unit, err := svc.Breed(cmd.Context(), caller, parentA, parentB, core.BreedOptions{})
				if err != nil {
					return err
				}
				view := newUnitView(unit, caller)
				view.Parents = &domain.ParentPair{A: parentA, B: parentB}
				return render(a.out, a.output, view)
			})
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <unit-id>",
		Short: "Show a unit, its owner, and its parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUnitID(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				unit, err := svc.Unit(cmd.Context(), id)
				if err != nil {
					return err
				}
				view := newUnitView(unit.Unit, unit.Owner)
				pair, ok, err := svc.Parents(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ok {
					view.Parents = &pair
				}
				return render(a.out, a.output, view)
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [account]",
		Short: "List an account's units in acquisition order",
		Long:  "List an account's units in acquisition order. Defaults to the acting account.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var owner domain.AccountID
			if len(args) == 1 {
				owner = domain.AccountID(args[0])
			} else {
				var err error
				if owner, err = a.caller(); err != nil {
					return err
				}
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				ids, err := svc.UnitsOf(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if ids == nil {
					ids = []domain.UnitID{}
				}
				return render(a.out, a.output, accountView{Account: owner, Units: ids})
			})
		},
	}
}

func newLineageCmd(a *app) *cobra.Command {
	var child, mate string
	cmd := &cobra.Command{
		Use:   "lineage <unit-id>",
		Short: "Show the recorded parents of a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUnitID(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				ctx := cmd.Context()
				pair, ok, err := svc.Parents(ctx, id)
				if err != nil {
					return err
				}
				view := lineageView{ID: id}
				if ok {
					view.Parents = &pair
				}
				if child != "" {
					childID, err := parseUnitID(child)
					if err != nil {
						return err
					}
					has, err := svc.HasChild(ctx, id, childID)
					if err != nil {
						return err
					}
					view.HasChild = &has
				}
				if mate != "" {
					mateID, err := parseUnitID(mate)
					if err != nil {
						return err
					}
					mates, err := svc.AreMates(ctx, id, mateID)
					if err != nil {
						return err
					}
					view.MateOf = &mates
				}
				return render(a.out, a.output, view)
			})
		},
	}
	cmd.Flags().StringVar(&child, "child", "", "also report whether this unit is a child of the given unit")
	cmd.Flags().StringVar(&mate, "mate", "", "also report whether the given unit was bred with this one")
	return cmd
}
