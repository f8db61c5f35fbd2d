package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/patient-dashboard/internal/api"
	"github.com/miradorstack/patient-dashboard/internal/models"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

type criteriaFlags struct {
	gender    string
	condition string
	doctor    string
	start     string
	end       string
}

func (f *criteriaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.gender, "gender", models.AllValues, "Gender to keep, or All")
	cmd.Flags().StringVar(&f.condition, "condition", models.AllValues, "Medical condition to keep, or All")
	cmd.Flags().StringVar(&f.doctor, "doctor", models.AllValues, "Doctor to keep, or All")
	cmd.Flags().StringVar(&f.start, "start", "", "First admission date (YYYY-MM-DD); defaults to the earliest in the dataset")
	cmd.Flags().StringVar(&f.end, "end", "", "Last admission date (YYYY-MM-DD); defaults to the latest in the dataset")
}

func (f *criteriaFlags) criteria() (models.Criteria, error) {
	criteria := models.Criteria{Gender: f.gender, Condition: f.condition, Doctor: f.doctor}
	var err error
	if criteria.Start, err = parseFlagDate("start", f.start); err != nil {
		return models.Criteria{}, err
	}
	if criteria.End, err = parseFlagDate("end", f.end); err != nil {
		return models.Criteria{}, err
	}
	return criteria, nil
}

func parseFlagDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(utils.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q (use YYYY-MM-DD): %w", name, value, err)
	}
	return t, nil
}

func newExportCmd(configPath *string) *cobra.Command {
	var (
		flags criteriaFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered patient rows as CSV",
		Long: `Apply the sidebar filters once and write the filtered rows as CSV.

Example: patient-dashboard export --gender Female --start 2023-01-01 --end 2023-03-31 --out filtered_patient_data.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := flags.criteria()
			if err != nil {
				return err
			}
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if _, err := a.loader.Load(); err != nil {
				return err
			}

			payload, err := a.service.Export(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(payload)
				return err
			}
			if err := os.WriteFile(out, payload, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(payload), out)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&out, "out", api.PatientDataFile, "Output file, or - for stdout")
	return cmd
}

func newSummaryCmd(configPath *string) *cobra.Command {
	var flags criteriaFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print key metrics and chart data for the filtered rows as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := flags.criteria()
			if err != nil {
				return err
			}
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if _, err := a.loader.Load(); err != nil {
				return err
			}

			result, err := a.service.Dashboard(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), api.ToSummaryResponse(result))
		},
	}

	flags.register(cmd)
	return cmd
}

func writeSummary(w io.Writer, resp api.SummaryResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
