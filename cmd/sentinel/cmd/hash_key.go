package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/auth"
)

var hashArgon2id bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate a hash for an agent API key",
	Long: `Generate a hash of an agent API key for use in the agent seed file.

The default output is "sha256:<hex>"; pass --argon2id for a PHC-format
Argon2id hash. Either form works in the agents file's key_hash field.

The key must start with "` + auth.KeyPrefix + `" and be at least 32
characters long.

Security note: The key will appear in shell history. Consider using an
environment variable:
  sentinel hash-key "$MY_AGENT_KEY"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if !auth.HasKeyPrefix(key) || len(key) < auth.MinKeyLength {
			fmt.Fprintf(os.Stderr, "key must start with %q and be at least %d characters\n",
				auth.KeyPrefix, auth.MinKeyLength)
			os.Exit(1)
		}
		if hashArgon2id {
			hash, err := auth.HashKeyArgon2id(key)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(hash)
			return
		}
		fmt.Printf("sha256:%s\n", auth.HashKey(key))
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashArgon2id, "argon2id", false, "emit an Argon2id PHC hash")
	rootCmd.AddCommand(hashKeyCmd)
}
