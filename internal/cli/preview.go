package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/linkupclient"
)

func (c *cli) previewCmd() *cobra.Command {
	var printRequest, qr bool
	cmd := &cobra.Command{
		Use:   "preview <service>=<url>...",
		Short: "Create a preview session where the given services point at other URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPreview(cmd.Context(), args, printRequest, qr)
		},
	}
	cmd.Flags().BoolVar(&printRequest, "print-request", false, "Print the request body instead of sending it.")
	cmd.Flags().BoolVar(&qr, "qr", false, "Print a QR code of the first preview URL")
	return cmd
}

func (c *cli) runPreview(ctx context.Context, args []string, printRequest, qr bool) error {
	overrides, err := parseServiceTuples(args)
	if err != nil {
		return err
	}
	pc, _, err := c.projectConfig()
	if err != nil {
		return err
	}
	doc, err := pc.PreviewDocument(overrides)
	if err != nil {
		return err
	}

	if printRequest {
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		c.printf("%s\n", data)
		return nil
	}

	remote, err := linkupclient.New(pc.Linkup.Remote, c.httpClient)
	if err != nil {
		return err
	}
	name, err := remote.Preview(ctx, doc)
	if err != nil {
		return fmt.Errorf("create preview on %s: %w", pc.Linkup.Remote, err)
	}
	return c.printSession(name, doc.Domains, qr)
}

// parseServiceTuples turns service=url arguments into a map.
func parseServiceTuples(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		name, url, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("service tuple %q must be of the form <service>=<url>", a)
		}
		out[name] = url
	}
	return out, nil
}
