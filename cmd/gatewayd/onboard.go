package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentgateway/gateway/internal/vault"
)

func buildOnboardCmd(configPath *string) *cobra.Command {
	var nonInteractive bool
	var provider string
	var apiKey string
	var password string
	var enableTOTP bool

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create a gateway config and vault with guided prompts",
		Long: `Write a new gateway.yaml, then initialise the credential vault with a
password and, optionally, TOTP two-factor auth. Run this once before the
first "gatewayd start".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !nonInteractive {
				reader := bufio.NewReader(os.Stdin)
				if strings.TrimSpace(provider) == "" {
					provider = promptString(reader, "LLM provider (anthropic/openai/google)", "anthropic")
				}
				if strings.TrimSpace(apiKey) == "" {
					apiKey = promptString(reader, "Provider API key", "")
				}
				if strings.TrimSpace(password) == "" {
					password = promptString(reader, "Vault password", "")
				}
				enableTOTP = promptBool(reader, "Enable TOTP two-factor auth?", enableTOTP)
			}

			if strings.TrimSpace(password) == "" {
				return fmt.Errorf("a vault password is required")
			}

			if err := writeOnboardConfig(*configPath, provider, apiKey); err != nil {
				return err
			}
			fmt.Printf("Config written: %s\n", *configPath)

			dir := vaultDirFromConfigPath(*configPath)
			v, err := vault.Open(dir, password)
			if err != nil {
				return fmt.Errorf("initialise vault: %w", err)
			}
			fmt.Printf("Vault initialised: %s\n", dir)

			if enableTOTP {
				uri, err := v.SetupTOTP("agentgateway", "cli")
				if err != nil {
					return fmt.Errorf("set up TOTP: %w", err)
				}
				fmt.Println()
				fmt.Println("Scan this QR code with your authenticator app:")
				fmt.Println()
				qr, err := qrcode.New(uri, qrcode.Medium)
				if err != nil {
					return fmt.Errorf("render QR code: %w", err)
				}
				fmt.Println(qr.ToString(false))
				fmt.Printf("Or enter this URI manually: %s\n", uri)
			}

			return nil
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Skip prompts; use only the flags given")
	cmd.Flags().StringVar(&provider, "provider", "anthropic", "Default LLM provider")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Provider API key")
	cmd.Flags().StringVar(&password, "password", "", "Vault password")
	cmd.Flags().BoolVar(&enableTOTP, "totp", false, "Enable TOTP two-factor auth")
	return cmd
}

func writeOnboardConfig(path, provider, apiKey string) error {
	doc := map[string]any{
		"llm": map[string]any{
			"default_provider": provider,
			"providers": map[string]any{
				provider: map[string]any{
					"api_key": apiKey,
				},
			},
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(parentDir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func promptString(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}
	text, _ := reader.ReadString('\n')
	text = strings.TrimSpace(text)
	if text == "" {
		return defaultValue
	}
	return text
}

func promptBool(reader *bufio.Reader, label string, defaultValue bool) bool {
	defaultLabel := "n"
	if defaultValue {
		defaultLabel = "y"
	}
	answer := strings.ToLower(promptString(reader, label+" (y/n)", defaultLabel))
	if answer == "" {
		return defaultValue
	}
	return answer == "y" || answer == "yes"
}
