package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/school-registry/internal/dto"
)

func (cli *commandLine) semesterCmd() *cobra.Command {
	semester := &cobra.Command{
		Use:   "semester",
		Short: "Manage academic years",
	}

	var file string
	start := &cobra.Command{
		Use:   "start",
		Short: "Open a new academic year and its fall and spring terms from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read semester file: %w", err)
			}
			var req dto.StartSemesterRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("decode semester file: %w", err)
			}
			terms, err := cli.semesters.StartSemester(cmd.Context(), systemActor, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "year %d (%s): fall %d, spring %d\n", terms.Year.ID, terms.Year.Name, terms.Fall.ID, terms.Spring.ID)
			return nil
		},
	}
	start.Flags().StringVarP(&file, "file", "f", "", "path to the semester JSON file")
	_ = start.MarkFlagRequired("file")

	semester.AddCommand(start)
	return semester
}
