package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/env"
	"github.com/larsen-farm/plugintools/internal/secrets"
)

func newSecretsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage encrypted config values",
	}

	cmd.AddCommand(newSecretsKeygenCmd(a))
	cmd.AddCommand(newSecretsEncryptCmd(a))
	cmd.AddCommand(newSecretsDecryptCmd(a))

	return cmd
}

func newSecretsKeygenCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an age keypair for ENC[...] config values",
		Long: `Writes a new X25519 identity to the key file (default
~/.config/larsen/age.key, mode 0600) and prints its public key. Share the
public key with whoever runs 'larsenctl secrets encrypt --recipient'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = defaultKeyPath()
			}
			identity, err := secrets.NewKey()
			if err != nil {
				return fmt.Errorf("generate keypair: %w", err)
			}
			if err := writeKeyFile(output, identity); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Key file written to: %s\nPublic key: %s\n", output, identity.Recipient())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "key file path (default: ~/.config/larsen/age.key)")
	return cmd
}

func defaultKeyPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "larsen", secrets.DefaultKeyFilename)
}

// writeKeyFile refuses to replace an existing key; values encrypted for it
// would become unreadable.
func writeKeyFile(path string, identity *age.X25519Identity) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key file already exists: %s (remove it first to regenerate)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().Format(time.RFC3339), identity.Recipient(), identity)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func newSecretsEncryptCmd(a *app) *cobra.Command {
	var recipientKey string

	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a value for use in the config file",
		Long: `Encrypts a plaintext value and prints the ENC[...] string to paste into the
[env] table of larsen.toml. Without --recipient the public key is taken from
the configured identity.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recipient age.Recipient

			if recipientKey != "" {
				r, err := age.ParseX25519Recipient(recipientKey)
				if err != nil {
					return fmt.Errorf("parse recipient: %w", err)
				}
				recipient = r
			} else {
				keys, err := a.keyring()
				if err != nil {
					return err
				}
				if recipient, err = keys.Recipient(); err != nil {
					return fmt.Errorf("%w; use --recipient to name a public key", err)
				}
			}

			encrypted, err := secrets.Seal(args[0], recipient)
			if err != nil {
				return fmt.Errorf("encrypt: %w", err)
			}
			fmt.Fprintln(a.out, encrypted)
			return nil
		},
	}

	cmd.Flags().StringVar(&recipientKey, "recipient", "", "age public key (default: read from key file)")
	return cmd
}

func newSecretsDecryptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <encrypted-value>",
		Short: "Decrypt an ENC[...] value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !secrets.IsEncrypted(args[0]) {
				return fmt.Errorf("value is not ENC[...]")
			}
			keys, err := a.keyring()
			if err != nil {
				return err
			}
			plaintext, err := keys.Open(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, plaintext)
			return nil
		},
	}
}

func (a *app) keyring() (*secrets.Keyring, error) {
	keys, err := secrets.LoadKeyring(env.OS(), a.cfg.Secrets.Identity)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if keys.Empty() {
		return nil, fmt.Errorf("no age identity found; set %s or %s, or run 'larsenctl secrets keygen'",
			secrets.EnvAgeKey, secrets.EnvAgeKeyFile)
	}
	return keys, nil
}
