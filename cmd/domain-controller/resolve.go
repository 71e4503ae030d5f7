package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/morezero/domain-controller/pkg/bootstrap"
	"github.com/morezero/domain-controller/pkg/coordination"
	"github.com/morezero/domain-controller/pkg/model"
)

var (
	resolveModelFile  string
	resolveLayoutFile string
	resolveHost       string
	resolveOpFile     string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [operation-json]",
	Short: "Execute one operation against a domain model file and print the resolved server operations",
	Long: `Execute one operation against a domain model file, without COMMS or a database, and
print the result as JSON. Changes are not written back to the model file.

Examples:
  # Which servers on master must apply a new domain-wide system property?
  domain-controller resolve --model domain.yaml \
    '{"operation":"add","address":[{"system-property":"tier"}],"value":"gold"}'

  # Read the operation from a file, resolving for another host
  domain-controller resolve --model domain.yaml --host slave-1 --op-file op.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := operationInput(cmd, args)
		if err != nil {
			return err
		}
		op, err := model.Decode(raw)
		if err != nil {
			return fmt.Errorf("parse operation: %w", err)
		}

		layout, err := bootstrap.LoadBootstrapConfig(resolveLayoutFile)
		if err != nil {
			return fmt.Errorf("load layout: %w", err)
		}
		root, err := bootstrap.NewRoot(layout)
		if err != nil {
			return fmt.Errorf("build registry: %w", err)
		}

		coordinator := coordination.NewCoordinator(coordination.NewCoordinatorParams{
			Root:          root,
			Store:         model.NewFileStore(resolveModelFile),
			LocalHostName: resolveHost,
		})
		outcome := coordinator.Execute(contextOf(cmd), op)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcome.Result)
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveModelFile, "model", "m", "domain.yaml", "domain model file (YAML or JSON)")
	resolveCmd.Flags().StringVarP(&resolveLayoutFile, "layout", "l", "", "resource layout file (default: built-in layout)")
	resolveCmd.Flags().StringVar(&resolveHost, "host", "master", "host whose servers are resolved")
	resolveCmd.Flags().StringVarP(&resolveOpFile, "op-file", "f", "", `file holding the operation ("-" for stdin)`)
}

func operationInput(cmd *cobra.Command, args []string) ([]byte, error) {
	switch {
	case len(args) == 1 && resolveOpFile != "":
		return nil, fmt.Errorf("pass the operation either as an argument or with --op-file")
	case len(args) == 1:
		return []byte(args[0]), nil
	case resolveOpFile == "-":
		return io.ReadAll(cmd.InOrStdin())
	case resolveOpFile != "":
		return os.ReadFile(resolveOpFile)
	}
	return nil, fmt.Errorf("an operation is required")
}
