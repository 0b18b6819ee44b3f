// Package reassign provides the command that spreads unstarted jobs evenly
package reassign

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/assign"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/members"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the reassign command
func Command(rt *runtime.Context) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reassign [task-id...]",
		Short: "Reassign jobs without annotations so that everyone has the same load",
		Long: `Reassign scans every job of the given tasks (all tasks when none are given).
Jobs with annotations stay with their assignee and count towards their load;
jobs without annotations are handed out to the selected members so that
started plus assigned jobs are as even as possible.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := rt.Out
			client, err := rt.CVAT()
			if err != nil {
				return err
			}

			roster, err := members.Fetch(ctx, client)
			if err != nil {
				return err
			}
			everyone := roster.All()
			if len(everyone) == 0 {
				return fmt.Errorf("organization has no members")
			}

			tasks, err := client.SelectTasks(ctx, ids, rt.Settings.ExcludedTasks)
			if err != nil {
				return err
			}
			survey, err := assign.SurveyTasks(ctx, client, tasks)
			if err != nil {
				return err
			}
			if len(survey.Unstarted) == 0 {
				fmt.Fprintln(out, "No unstarted jobs to reassign")
				return nil
			}
			printCandidates(out, survey)

			fmt.Fprintln(out, "\nMembers:")
			for i, m := range everyone {
				fmt.Fprintf(out, "   %d. %s (@%s) [%s]\n", i+1, m.DisplayName, m.Username, m.Role)
			}
			answer, err := rt.Prompter().String("Members to assign to (numbers separated by spaces, or 'all')", "")
			if err != nil {
				return err
			}
			picked, err := assign.ParseSelection(answer, len(everyone))
			if err != nil {
				return err
			}
			people := make([]assign.Person, len(picked))
			for i, idx := range picked {
				people[i] = everyone[idx].Person()
			}

			workloads := assign.Balance(people, survey.Started, len(survey.Unstarted))
			plan := assign.Distribute(workloads, survey.Unstarted)
			fmt.Fprintln(out, "\nPlan:")
			for _, w := range workloads {
				fmt.Fprintf(out, "   %s\n", w)
			}

			if !yes {
				ok, err := rt.Prompter().Confirm(fmt.Sprintf("Reassign %d jobs?", len(plan)), false)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Reassignment cancelled")
					return nil
				}
			}

			res, err := assign.Apply(ctx, client, plan, rt.Metrics)
			rt.Record("assigned", res.Assigned)
			rt.Record("failed", res.Failed)
			fmt.Fprintf(out, "\nAssigned %d jobs, %d failed\n", res.Assigned, res.Failed)
			return err
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply the plan without asking")
	return cmd
}

func printCandidates(w io.Writer, survey *assign.Survey) {
	fmt.Fprintf(w, "Unstarted jobs (%d):\n", len(survey.Unstarted))
	for i, c := range survey.Unstarted {
		current := c.CurrentAssignee
		if current == "" {
			current = "unassigned"
		}
		fmt.Fprintf(w, "   %d. job %d of %s (%d frames), currently %s\n", i+1, c.JobID, c.TaskName, c.FrameCount(), current)
	}
	if survey.Unknown > 0 {
		fmt.Fprintf(w, "%d jobs could not be read and are left alone\n", survey.Unknown)
	}
}

func parseIDs(args []string) ([]int, error) {
	var ids []int
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("task id must be a positive number: %q", a)
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
