package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dtn-go/bpsecpolicy/internal/config"
	"github.com/dtn-go/bpsecpolicy/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect resolved BPSec policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the policies resolved from a config file",
	Long: `Load a BPSec policy config file and print every resolved policy,
one row per (securitySource, bundleSource, bundleFinalDestination, role)
tuple produced by the config's cross-product expansion.`,
	RunE: runPolicyList,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd)
	policyListCmd.Flags().String("config", "", "Path to the policy config file (required)")
	policyListCmd.Flags().String("format", "text", "Output format: text or yaml")
	policyListCmd.MarkFlagRequired("config") //nolint:errcheck // flag registered above
}

func runPolicyList(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config") //nolint:errcheck // flag registered above
	format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag registered above

	m, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var all []*policy.Policy
	for _, role := range []policy.Role{policy.Source, policy.Verifier, policy.Acceptor} {
		all = append(all, m.Store.PoliciesForRole(role)...)
	}

	switch format {
	case "yaml":
		return printPoliciesYAML(cmd.OutOrStdout(), all)
	default:
		return printPoliciesText(cmd.OutOrStdout(), all)
	}
}

func printPoliciesText(w io.Writer, policies []*policy.Policy) error {
	if len(policies) == 0 {
		fmt.Fprintln(w, "No policies configured.") //nolint:errcheck // best-effort output
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tSECSRC\tBSRC\tBDST\tSERVICE\tCONTEXT") //nolint:errcheck // best-effort output
	for _, p := range policies {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort output
			p.ID, p.Role, p.SecSrc, p.BSrc, p.BDst, serviceName(p.Service), contextName(p.Context))
	}
	return tw.Flush()
}

type policyYAML struct {
	ID      int    `yaml:"id"`
	Role    string `yaml:"role"`
	SecSrc  string `yaml:"securitySource"`
	BSrc    string `yaml:"bundleSource"`
	BDst    string `yaml:"bundleFinalDestination"`
	Service string `yaml:"securityService"`
	Context string `yaml:"securityContext"`
	Targets []int  `yaml:"securityTargetBlockTypes"`
}

func printPoliciesYAML(w io.Writer, policies []*policy.Policy) error {
	out := make([]policyYAML, 0, len(policies))
	for _, p := range policies {
		targets := make([]int, 0, len(p.TargetBlockTypes))
		for t := range p.TargetBlockTypes {
			targets = append(targets, int(t))
		}
		out = append(out, policyYAML{
			ID: p.ID, Role: p.Role.String(), SecSrc: p.SecSrc.String(),
			BSrc: p.BSrc.String(), BDst: p.BDst.String(),
			Service: serviceName(p.Service), Context: contextName(p.Context),
			Targets: targets,
		})
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close() //nolint:errcheck // best-effort cleanup
	return enc.Encode(out)
}

func serviceName(s policy.Service) string {
	if s == policy.Confidentiality {
		return "confidentiality"
	}
	return "integrity"
}

func contextName(c policy.ContextID) string {
	if c == policy.AesGcm {
		return "aesGcm"
	}
	return "hmacSha"
}
