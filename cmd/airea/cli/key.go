package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/airea/airea/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage device API keys",
		Long:    "Issue and revoke the API keys devices exchange for session tokens.",
	}

	cmd.AddCommand(newKeyIssueCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key issue ----------

func newKeyIssueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue <deviceId>",
		Short: "Issue a new API key for a device",
		Long: `Generate a new API key for a registered device, replacing any previous key.
The raw key is shown once and cannot be retrieved again. When stdout is not a
terminal only the key itself is printed, so it can be piped into provisioning.`,
		Example: `  airea key issue ESP32_LIVING_ROOM
  airea key issue ESP32_LIVING_ROOM > living_room.key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyIssue(cmd.OutOrStdout(), args[0], isTerminal(os.Stdout))
		},
	}

	return cmd
}

func runKeyIssue(out io.Writer, deviceID string, interactive bool) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer store.Close()

	authSvc, err := buildAuth(settings, store, false)
	if err != nil {
		return err
	}

	issued, err := authSvc.IssueAPIKey(context.Background(), deviceID)
	if errors.Is(err, service.ErrDeviceNotFound) {
		return fmt.Errorf("device %q not found (register it with 'airea device register')", deviceID)
	}
	if err != nil {
		return fmt.Errorf("issue api key: %w", err)
	}

	if !interactive {
		fmt.Fprintln(out, issued.APIKey)
		return nil
	}

	fmt.Fprintln(out, "API key issued:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Device: %s\n", issued.DeviceID)
	fmt.Fprintf(out, "  Key:    %s\n", issued.APIKey)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s\n", issued.Message)
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <deviceId>",
		Short: "Revoke a device's API key",
		Long:  "Clear the device's stored key digest. Session tokens already issued stay valid until they expire.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd.OutOrStdout(), args[0])
		},
	}
}

func runKeyRevoke(out io.Writer, deviceID string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer store.Close()

	// Revocation never signs anything, so the dev key is acceptable here.
	authSvc, err := buildAuth(settings, store, true)
	if err != nil {
		return err
	}
	if err := authSvc.RevokeAPIKey(context.Background(), deviceID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Fprintf(out, "Revoked API key for device %s\n", deviceID)
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
