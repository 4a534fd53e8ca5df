package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verdane/tokenforge/internal/token"
)

var hsmCmd = &cobra.Command{
	Use:   "hsm",
	Short: "Token diagnostic commands",
	Long: `Diagnostic commands for PKCS#11 tokens.

These commands help discover and validate token configuration.

Examples:
  # List available slots and tokens (discovery, no config needed)
  tokenforge hsm list --lib /usr/lib/softhsm/libsofthsm2.so

  # Test connectivity and authentication
  tokenforge hsm test --config ./token.yaml`,
}

var hsmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List slots and tokens",
	Long: `List all slots in a PKCS#11 module and the tokens present in them.

This command does not require authentication and shows:
  - Slot ID and description
  - Token label and serial (if present)
  - Token manufacturer

Examples:
  tokenforge hsm list --lib /usr/lib/softhsm/libsofthsm2.so
  tokenforge hsm list --lib /usr/lib/utimaco/libcs_pkcs11_R3.so`,
	RunE: runHSMList,
}

var hsmTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test token connectivity",
	Long: `Test token connectivity and authentication.

Verifies that:
  - The PKCS#11 module can be loaded
  - The configured token can be found
  - Authentication (login) succeeds

Examples:
  tokenforge hsm test --config ./token.yaml`,
	RunE: runHSMTest,
}

var (
	hsmLib        string
	hsmConfigPath string
)

func init() {
	hsmCmd.AddCommand(hsmListCmd)
	hsmCmd.AddCommand(hsmTestCmd)

	hsmListCmd.Flags().StringVar(&hsmLib, "lib", "", "Path to PKCS#11 library (required)")
	_ = hsmListCmd.MarkFlagRequired("lib")

	hsmTestCmd.Flags().StringVar(&hsmConfigPath, "config", "", "Path to token configuration file (required)")
	_ = hsmTestCmd.MarkFlagRequired("config")
}

func runHSMList(cmd *cobra.Command, args []string) (err error) {
	mod, err := token.LoadModule(hsmLib)
	if err != nil {
		return fmt.Errorf("failed to load PKCS#11 module: %w", err)
	}
	defer func() {
		if cerr := mod.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	slots, err := mod.Slots()
	if err != nil {
		return fmt.Errorf("failed to list slots: %w", err)
	}

	fmt.Printf("PKCS#11 Module: %s\n\n", hsmLib)

	if len(slots) == 0 {
		fmt.Println("No slots found.")
		return nil
	}

	for _, slot := range slots {
		fmt.Printf("Slot %d:\n", slot.ID)
		fmt.Printf("  Description:  %s\n", strings.TrimSpace(slot.Description))

		if slot.HasToken {
			fmt.Printf("  Token Label:  %s\n", slot.TokenLabel)
			fmt.Printf("  Token Serial: %s\n", maskSerial(slot.TokenSerial))
			if slot.Manufacturer != "" {
				fmt.Printf("  Manufacturer: %s\n", slot.Manufacturer)
			}
		} else {
			fmt.Printf("  Token:        (not present)\n")
		}
		fmt.Println()
	}

	return nil
}

func runHSMTest(cmd *cobra.Command, args []string) error {
	cfg, err := token.LoadConfig(hsmConfigPath)
	if err != nil {
		return err
	}

	fmt.Printf("Testing token configuration: %s\n\n", hsmConfigPath)

	fmt.Printf("[1/3] Loading PKCS#11 module... ")
	mod, err := token.LoadModule(cfg.Lib)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	defer func() { _ = mod.Close() }()
	fmt.Println("OK")

	fmt.Printf("[2/3] Opening session on token %q... ", cfg.Token)
	sess, err := token.Open(mod, *cfg)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	defer func() { _ = sess.Close() }()
	fmt.Println("OK")

	fmt.Printf("[3/3] Reading PIN from $%s and authenticating... ", cfg.PinEnv)
	pin, err := cfg.GetPIN()
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	if err := sess.Login(pin); err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	fmt.Println("\nAll tests passed!")
	return nil
}
