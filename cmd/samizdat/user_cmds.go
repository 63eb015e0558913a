package main

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"samizdat/internal/app"
)

var (
	verbose bool
	users   *app.App
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		users = mustBoot(app.Options{Quiet: !verbose})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if users != nil {
			users.Close()
		}
	},
}

func init() {
	userCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userInfoCmd)
	userCmd.AddCommand(userPassCmd)
	userCmd.AddCommand(userRemoveCmd)
	userCmd.AddCommand(userRenameCmd)
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	Run: func(cmd *cobra.Command, args []string) {
		var (
			username string
			password string
		)

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Username").
					Description("Letters and digits, used at the login prompt").
					Value(&username).
					Validate(func(str string) error {
						if len(str) < 3 {
							return fmt.Errorf("username must be at least 3 characters")
						}
						if _, err := users.Store.FindUserByUsername(str); err == nil {
							return fmt.Errorf("username already taken")
						}
						return nil
					}),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password).
					Validate(func(str string) error {
						if len(str) < 6 {
							return fmt.Errorf("password must be at least 6 characters")
						}
						return nil
					}),
			),
		)

		if err := form.Run(); err != nil {
			log.Fatal(err)
		}

		if err := users.Store.CreateUser(username, password); err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		fmt.Printf("User '%s' created.\n", username)
	},
}

var userInfoCmd = &cobra.Command{
	Use:   "info [username]",
	Short: "Display information about a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		user, err := users.Store.FindUserByUsername(args[0])
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		lastLogin := "never"
		if user.LastLoginAt != nil {
			lastLogin = user.LastLoginAt.Format("2006-01-02 15:04:05")
		}
		encoding := user.Encoding
		if encoding == "" {
			encoding = "(default)"
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID:\t%d\n", user.ID)
		fmt.Fprintf(w, "Username:\t%s\n", user.Username)
		fmt.Fprintf(w, "Encoding:\t%s\n", encoding)
		fmt.Fprintf(w, "Logins:\t%d\n", user.Logins)
		fmt.Fprintf(w, "Last Login:\t%s\n", lastLogin)
		fmt.Fprintf(w, "Created At:\t%s\n", user.CreatedAt.Format("2006-01-02 15:04:05"))
		w.Flush()

		transfers, err := users.Store.RecentTransfers(user.Username, 10)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		if len(transfers) == 0 {
			return
		}
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "When\tProtocol\tDirection\tFile\tBytes\tResult")
		for _, t := range transfers {
			result := "ok"
			if !t.Success {
				result = t.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", t.CreatedAt.Format("2006-01-02 15:04"), t.Protocol, t.Direction, t.Filename, t.Bytes, result)
		}
		w.Flush()
	},
}

var userPassCmd = &cobra.Command{
	Use:   "password [username] [new_password]",
	Short: "Set a user's password",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := users.Store.UpdatePassword(args[0], args[1]); err != nil {
			log.Fatalf("Error updating password: %v", err)
		}
		fmt.Printf("Password updated for user '%s'.\n", args[0])
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove [username]",
	Short: "Permanently remove a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := users.Store.RemoveUser(args[0]); err != nil {
			log.Fatalf("Error removing user: %v", err)
		}
		fmt.Printf("User '%s' removed.\n", args[0])
	},
}

var userRenameCmd = &cobra.Command{
	Use:   "rename [old_name] [new_name]",
	Short: "Rename a user",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := users.Store.RenameUser(args[0], args[1]); err != nil {
			log.Fatalf("Error renaming user: %v", err)
		}
		fmt.Printf("User '%s' renamed to '%s'.\n", args[0], args[1])
	},
}
