package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"recsched/internal/reservation"
	"recsched/internal/storage"
	logx "recsched/pkg/logx"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	conflictStyle = cellStyle.Foreground(lipgloss.Color("203"))
	skipStyle     = cellStyle.Foreground(lipgloss.Color("245"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func NewReservesCmd() *cobra.Command {
	var (
		file, driver, state string
		limit, offset       int
		asJSON              bool
	)
	cmd := &cobra.Command{
		Use:   "reserves",
		Short: "List persisted reservations without starting the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := statePredicate(state)
			if err != nil {
				return err
			}
			st, err := storage.Open(storage.Config{Driver: driver, Path: file}, logx.Nop())
			if err != nil {
				return err
			}
			defer st.Close()
			items, err := st.Load(cmd.Context())
			if err != nil {
				return err
			}
			page := reservation.NewSet(items).Filter(pred, limit, offset)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(page.Items)
			}
			renderReserves(out, page, time.Local)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "./data/reserves.json", "reservation store path")
	cmd.Flags().StringVar(&driver, "driver", "file", "reservation store driver (file|sqlite)")
	cmd.Flags().StringVar(&state, "state", "all", "all|active|conflicts|skips")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func statePredicate(state string) (func(reservation.Reservation) bool, error) {
	switch state {
	case "", "all":
		return nil, nil
	case "active":
		return reservation.Active, nil
	case "conflicts":
		return reservation.Conflicted, nil
	case "skips":
		return reservation.Skipped, nil
	default:
		return nil, fmt.Errorf("unknown state %q (want all|active|conflicts|skips)", state)
	}
}

func renderReserves(w io.Writer, page reservation.Page, loc *time.Location) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no reservations"))
		return
	}
	rows := make([][]string, 0, len(page.Items))
	for _, r := range page.Items {
		rows = append(rows, []string{
			strconv.FormatInt(r.Program.ID, 10),
			source(r),
			time.UnixMilli(r.Program.StartAt).In(loc).Format("01/02 15:04"),
			time.UnixMilli(r.Program.EndAt).In(loc).Format("15:04"),
			string(r.Program.ChannelType) + " " + r.Program.Channel,
			r.Program.Name,
			stateLabel(r),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("PROGRAM", "SOURCE", "START", "END", "CHANNEL", "NAME", "STATE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			switch stateLabel(page.Items[row]) {
			case "conflict":
				return conflictStyle
			case "skip":
				return skipStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d of %d", len(page.Items), page.Total)))
}

func source(r reservation.Reservation) string {
	if r.IsManual() {
		return "manual"
	}
	return "rule " + strconv.FormatInt(r.RuleID, 10)
}

func stateLabel(r reservation.Reservation) string {
	switch {
	case r.Conflict:
		return "conflict"
	case r.Skip:
		return "skip"
	}
	return "active"
}
