package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/facturaIA/fiscal-extractor/internal/config"
	"github.com/facturaIA/fiscal-extractor/internal/engine"
	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/services"
)

var version = "1.0.0"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli holds the state shared by subcommands
type cli struct {
	configPath string
	in         io.Reader
	out        io.Writer
	errOut     io.Writer
	engine     *engine.Engine
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "fiscalctl",
		Short: "Extract fiscal data from OCR text of Spanish invoices and receipts",
		Long: `fiscalctl runs the extraction engine locally on OCR text.

The text is read from --file or from standard input and the result is
written to standard output as JSON.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "path to the YAML configuration")

	root.AddCommand(c.invoiceCmd(), c.expenseCmd(), c.sequenceCmd())
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logger.SetOutput(c.errOut)
	c.engine = engine.New(config.EngineOptions(cfg, logger)...)
	return nil
}

func (c *cli) invoiceCmd() *cobra.Command {
	var file, last string

	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Extract an invoice",
		Example: `  fiscalctl invoice --file factura.txt
  fiscalctl invoice --file factura.txt --last F-2025/0041`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := c.readText(file)
			if err != nil {
				return err
			}
			return c.writeJSON(c.engine.ExtractInvoice(text, last))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "OCR text file (default: stdin)")
	cmd.Flags().StringVarP(&last, "last", "l", "", "last known invoice number of the issuer")
	return cmd
}

func (c *cli) expenseCmd() *cobra.Command {
	var file string
	var ec models.ExpenseContext

	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Extract an expense receipt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := c.readText(file)
			if err != nil {
				return err
			}
			return c.writeJSON(c.engine.ExtractExpense(text, ec))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "OCR text file (default: stdin)")
	cmd.Flags().StringVar(&ec.UserID, "user", "local", "user the expense belongs to")
	cmd.Flags().StringVar(&ec.CategoryID, "category", "", "category ID to attach")
	cmd.Flags().StringVar(&ec.TaxID, "tax-id", "", "own NIF, used to tell income from expense")
	return cmd
}

func (c *cli) sequenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sequence NEW LAST",
		Short: "Check that NEW follows LAST",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.writeJSON(map[string]interface{}{
				"number":          args[0],
				"lastNumber":      args[1],
				"isValidSequence": services.IsSequential(args[0], args[1]),
				"convention":      services.DetectConvention(args[0]),
			})
		},
	}
}

func (c *cli) readText(file string) (string, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

func (c *cli) writeJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
