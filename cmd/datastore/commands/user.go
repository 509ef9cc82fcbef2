package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cordate/datastore/storage"
)

// UserCmd represents the user command
var UserCmd = &cobra.Command{
	Use:   "user",
	Short: "Register audit actors",
	Long: `user — Register audit actors

Every mutation is blamed on a registered user key. Keys are free-form
identifiers, typically email addresses.

Examples:
  datastore user add rn@clinic.example`,
}

var userAddCmd = &cobra.Command{
	Use:   "add KEY",
	Short: "Register a user key",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

func init() {
	UserCmd.AddCommand(userAddCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	conn, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := storage.AddUser(conn, args[0]); err != nil {
		return err
	}
	fmt.Printf("User registered: %s\n", args[0])
	return nil
}
