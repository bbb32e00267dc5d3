package main

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// reconcile reports the teachers whose assigned groups count drifted from the groups they supervise.
func (cli *commandLine) reconcile(ctx context.Context, apply bool) error {
	actual, err := cli.groups.CountBySupervisor(ctx)
	if err != nil {
		return err
	}
	drifts, err := cli.users.ReconcileCounts(ctx, actual, apply)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		fmt.Fprintln(cli.out, "no drift")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLL\tNAME\tSTORED\tACTUAL\tCAPACITY")
	for _, d := range drifts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", d.Teacher.RollNumber, d.Teacher.Name, d.Stored, d.Actual, d.Capacity)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if apply {
		fmt.Fprintf(cli.out, "%d count(s) fixed\n", len(drifts))
	}
	return nil
}
