package advect

import (
	"fmt"

	"github.com/chazu/narrowband/pkg/ls"
)

// PrepareStencilLocalLaxFriedrichs sets up a layer stack for advection with
// StencilLocalLaxFriedrichs1st. isDepo marks the layers that are deposited
// material. The top level set is replaced by the inverted union of every run
// of deposited layers minus the layer they rest on, so that the advected
// surface is the boundary of the deposited material only.
func PrepareStencilLocalLaxFriedrichs(levelSets []*ls.Domain, isDepo []bool) error {
	if len(levelSets) == 0 {
		return ls.ErrEmptyLevelSets
	}
	if len(isDepo) != len(levelSets) {
		ls.Logger().Warn("deposition flags do not match the number of level sets",
			"flags", len(isDepo), "levelSets", len(levelSets))
	}
	depo := func(i int) bool { return i < len(isDepo) && isDepo[i] }

	top := levelSets[len(levelSets)-1]
	final := ls.New(top.Grid())
	var run *ls.Domain
	for i := len(levelSets) - 1; i >= 0; i-- {
		if depo(i) {
			if run == nil {
				run = levelSets[i]
			}
			continue
		}
		if run != nil {
			part := run.Clone()
			if err := ls.Boolean(part, levelSets[i], ls.RelativeComplement); err != nil {
				return fmt.Errorf("advect: prepare stencil layers: %w", err)
			}
			if err := ls.Boolean(final, part, ls.Union); err != nil {
				return fmt.Errorf("advect: prepare stencil layers: %w", err)
			}
			run = nil
		}
	}
	if run != nil {
		if err := ls.Boolean(final, run, ls.Union); err != nil {
			return fmt.Errorf("advect: prepare stencil layers: %w", err)
		}
	}
	if err := ls.Boolean(final, nil, ls.Invert); err != nil {
		return err
	}
	top.DeepCopy(final)
	return nil
}

// FinalizeStencilLocalLaxFriedrichs undoes PrepareStencilLocalLaxFriedrichs
// after advection: the top level set is inverted back and merged with the
// layer below it.
func FinalizeStencilLocalLaxFriedrichs(levelSets []*ls.Domain) error {
	if len(levelSets) == 0 {
		return ls.ErrEmptyLevelSets
	}
	top := levelSets[len(levelSets)-1]
	if err := ls.Boolean(top, nil, ls.Invert); err != nil {
		return err
	}
	if len(levelSets) < 2 {
		return nil
	}
	if err := ls.Boolean(top, levelSets[len(levelSets)-2], ls.Union); err != nil {
		return fmt.Errorf("advect: finalize stencil layers: %w", err)
	}
	return nil
}
