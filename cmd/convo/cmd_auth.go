package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Authenticate with the convo backend",
	Long: `Authenticates against the backend and stores the issued token pair in
the state directory. The password is read from the terminal, never from
arguments, so it stays out of the shell history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored credentials",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the currently authenticated account",
	RunE:  runWhoami,
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	var email string
	if len(args) == 1 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("email required")
	}

	fmt.Print("Password: ")
	password, err := readPassword(reader)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	user, err := a.tokens.Login(ctx, email, password)
	if err != nil {
		return err
	}

	logger.Info("login succeeded", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	fmt.Printf("Logged in as %s (%s)\n", user.Email, user.Role)
	return nil
}

// readPassword hides input on a real terminal and falls back to a plain
// line read when stdin is piped (CI, expect scripts).
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	if !a.tokens.Authenticated() {
		fmt.Println("Not logged in.")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	if err := a.tokens.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	if !a.tokens.Authenticated() {
		return fmt.Errorf("not logged in: run `convo login`")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	user, err := a.tokens.CurrentUser(ctx)
	if err != nil {
		// The backend may be unreachable; the cached identity still
		// answers the question.
		if email := a.tokens.Email(); email != "" {
			logger.Warn("current-user call failed, using cached identity", zap.Error(err))
			fmt.Printf("%s (cached)\n", email)
			return nil
		}
		return err
	}

	fmt.Printf("%s (%s)\n", user.Email, user.Role)
	return nil
}
