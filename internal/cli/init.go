package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jx-codes/lootbox/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a lootbox project in the current directory",
	Long: `Creates lootbox.yaml, a tools/ directory with one example tool
file demonstrating the required (args) signature shape, and the data
directory the run log and worker scratch files live under.`,
	RunE: runInit,
}

const exampleToolFile = `// example.lb.ts is discovered as the "example" namespace. Delete it once
// you've added your own tool files alongside it.

export const meta = {
  description: "Example arithmetic helpers",
  useWhen: "demonstrating the required (args) function signature shape",
  tags: ["example"],
};

/**
 * Add two numbers.
 * @param args.a the first addend
 * @param args.b the second addend
 * @returns the sum
 */
export async function add(args: { a: number; b: number }): Promise<number> {
  return args.a + args.b;
}
`

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg := config.Default(dir)

	cfgPath := config.DefaultConfigPath(dir)
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Printf("%s already exists, leaving it untouched.\n", cfgPath)
	} else {
		if err := config.Write(cfgPath, cfg); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		fmt.Printf("wrote %s\n", cfgPath)
	}

	if err := os.MkdirAll(cfg.ProjectToolDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", cfg.ProjectToolDir, err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", cfg.DataDir, err)
	}

	examplePath := filepath.Join(cfg.ProjectToolDir, "example"+cfg.ToolExtension)
	if _, statErr := os.Stat(examplePath); statErr == nil {
		fmt.Printf("%s already exists, leaving it untouched.\n", examplePath)
	} else {
		if err := os.WriteFile(examplePath, []byte(exampleToolFile), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", examplePath, err)
		}
		fmt.Printf("wrote %s\n", examplePath)
	}

	fmt.Println("run `lootbox serve` to start the server.")
	return nil
}
