package commands

import (
	"os"

	"github.com/spf13/cobra"

	"fleetops/internal/dash"
)

func dashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Open the terminal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := operator
			if name == "" {
				name = os.Getenv("USER")
			}
			c := apiClient()
			c.Operator = name
			return dash.Run(c, name)
		},
	}
}
