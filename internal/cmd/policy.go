package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxop/voxop/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the safety policy",
	Long: `Inspect and create the safety policy that gates task execution.

The policy maps capability categories (filesystem-write, process-control,
networking, input-automation, credential-access) to allow, confirm, or
deny, and carries regex pattern lists that block or escalate specific
payload shapes.

Subcommands:
  init   Write the built-in conservative policy to a file
  show   Print the policy in effect

Examples:
  voxop policy init --output policy.yaml
  voxop policy show
  voxop policy show --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var (
	policyInitOutput string
	policyInitForce  bool
	policyShowJSON   bool
)

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in policy to a file",
	Long: `Write the built-in conservative policy to a YAML file.

The built-in policy confirms filesystem writes and process control,
denies credential access, and blocks destructive payload shapes such as
recursive deletes of / and raw writes to block devices. Edit the file,
then point policy_path in the config (or VOXOP_POLICY_PATH) at it.`,
	RunE: runPolicyInit,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the policy in effect",
	RunE:  runPolicyShow,
}

func init() {
	policyInitCmd.Flags().StringVarP(&policyInitOutput, "output", "o", "policy.yaml", "where to write the policy file")
	policyInitCmd.Flags().BoolVar(&policyInitForce, "force", false, "overwrite an existing file")
	policyShowCmd.Flags().BoolVar(&policyShowJSON, "json", false, "output as JSON")

	policyCmd.AddCommand(policyInitCmd)
	policyCmd.AddCommand(policyShowCmd)
	rootCmd.AddCommand(policyCmd)
}

func runPolicyInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(policyInitOutput); err == nil && !policyInitForce {
		return fmt.Errorf("policy file already exists: %s (use --force to overwrite)", policyInitOutput)
	}

	if err := policy.SavePolicy(policy.DefaultPolicy(), policyInitOutput); err != nil {
		return err
	}

	fmt.Printf("✅ Created policy file: %s\n", policyInitOutput)
	fmt.Println()
	fmt.Println("Set policy_path in your config (or VOXOP_POLICY_PATH) to use it.")
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source := "built-in default"
	pol := policy.DefaultPolicy()
	if cfg.PolicyPath != "" {
		pol, err = policy.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return err
		}
		source = cfg.PolicyPath
	}

	if policyShowJSON {
		data, err := json.MarshalIndent(pol, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal policy: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Policy source: %s\n\n", source)
	fmt.Printf("Default action: %s\n\n", pol.Default)
	fmt.Println("Capabilities:")
	for _, c := range policy.Capabilities() {
		action := pol.Default
		if a, ok := pol.Capabilities[c]; ok {
			action = a
		}
		fmt.Printf("  %-19s %s\n", c, action)
	}
	if len(pol.BlockPatterns) > 0 {
		fmt.Println("\nBlock patterns (always denied):")
		for _, p := range pol.BlockPatterns {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(pol.ConfirmPatterns) > 0 {
		fmt.Println("\nConfirm patterns (escalated to confirmation):")
		for _, p := range pol.ConfirmPatterns {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}
