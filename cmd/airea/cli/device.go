package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/airea/airea/internal/config"
	"github.com/airea/airea/internal/handler"
	"github.com/airea/airea/internal/model"
)

func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "device",
		Aliases: []string{"devices"},
		Short:   "Manage registered devices",
		Long:    "Register, list, and deactivate the sensors allowed to authenticate against the gateway.",
	}

	cmd.AddCommand(newDeviceRegisterCmd())
	cmd.AddCommand(newDeviceListCmd())
	cmd.AddCommand(newDeviceDeactivateCmd())

	return cmd
}

// ---------- device register ----------

func newDeviceRegisterCmd() *cobra.Command {
	var name, location string

	cmd := &cobra.Command{
		Use:   "register <deviceId>",
		Short: "Register a device",
		Long:  "Add a device to the registry. Registering a known device ID prints the existing record.",
		Example: `  airea device register ESP32_LIVING_ROOM --name "Living room" --location "Ground floor"
  airea device register ESP32_BEDROOM`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeviceRegister(cmd.OutOrStdout(), args[0], name, location)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable device name")
	cmd.Flags().StringVar(&location, "location", "", "Where the device is installed")

	return cmd
}

func runDeviceRegister(out io.Writer, deviceID, name, location string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	pattern, err := handler.NewDeviceIDPattern(settings.Auth.DeviceIDPattern)
	if err != nil {
		return err
	}
	if !pattern.Valid(deviceID) {
		return fmt.Errorf("invalid device ID %q (must match %s)", deviceID, pattern)
	}

	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer store.Close()

	dev, created, err := store.RegisterDevice(context.Background(), &model.Device{
		DeviceID:   deviceID,
		DeviceName: name,
		Location:   location,
	})
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}

	if created {
		fmt.Fprintf(out, "Registered device %s\n", dev.DeviceID)
	} else {
		fmt.Fprintf(out, "Device %s is already registered\n", dev.DeviceID)
	}
	fmt.Fprintf(out, "  ID:     %s\n", dev.ID)
	fmt.Fprintf(out, "  Active: %s\n", yesNo(dev.IsActive))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Issue its API key with 'airea key issue %s'.\n", dev.DeviceID)
	return nil
}

// ---------- device list ----------

func newDeviceListCmd() *cobra.Command {
	var (
		activeOnly bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeviceList(cmd.OutOrStdout(), activeOnly, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active devices")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDeviceList(out io.Writer, activeOnly, jsonOutput bool) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer store.Close()

	devices, err := store.ListDevices(context.Background(), activeOnly)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices registered. Use 'airea device register' to add one.")
		return nil
	}

	fmt.Fprintf(out, "%-24s %-20s %-20s %-8s %-8s\n", "DEVICE ID", "NAME", "LOCATION", "ACTIVE", "KEY")
	fmt.Fprintf(out, "%-24s %-20s %-20s %-8s %-8s\n", "---------", "----", "--------", "------", "---")
	for _, d := range devices {
		fmt.Fprintf(out, "%-24s %-20s %-20s %-8s %-8s\n",
			d.DeviceID, d.DeviceName, d.Location, yesNo(d.IsActive), yesNo(d.HasAPIKey()))
	}
	return nil
}

// ---------- device deactivate ----------

func newDeviceDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <deviceId>",
		Short: "Deactivate a device",
		Long:  "Mark a device inactive. Its API key stays on record but no longer authenticates.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeviceDeactivate(cmd.OutOrStdout(), args[0])
		},
	}
}

func runDeviceDeactivate(out io.Writer, deviceID string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	dev, err := store.FindByExternalID(ctx, deviceID)
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("device %q not found", deviceID)
	}
	if err != nil {
		return fmt.Errorf("find device: %w", err)
	}

	dev.IsActive = false
	if _, err := store.Save(ctx, dev); err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}

	fmt.Fprintf(out, "Deactivated device %s\n", deviceID)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
