// Package main - manifest subcommand: parse a manifest document and print
// per-field diagnostics.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/garciaii/lighthouse/internal/manifest"

	"github.com/spf13/cobra"
)

var manifestDocumentURL string

var manifestCmd = &cobra.Command{
	Use:   "manifest [url|file]",
	Short: "Parse a web app manifest and report per-field diagnostics",
	Long: `Reads a manifest from a URL or a local file and prints what the
parser made of each install-relevant member. Malformed documents and members
are reported as diagnostics, never as a parse abort.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

func init() {
	manifestCmd.Flags().StringVar(&manifestDocumentURL, "document-url", "",
		"page URL the manifest is linked from (for the start_url same-origin check)")
}

func runManifest(cmd *cobra.Command, args []string) error {
	source := args[0]

	rawText, manifestURL, err := readManifestSource(source)
	if err != nil {
		return err
	}

	var docURL *url.URL
	if manifestDocumentURL != "" {
		docURL, err = url.Parse(manifestDocumentURL)
		if err != nil {
			return fmt.Errorf("parse --document-url: %w", err)
		}
	}

	parsed := manifest.Parse(rawText, manifestURL, docURL)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(parsed)
	}

	if parsed.Value == nil {
		fmt.Printf("manifest: unparsable\n    %s\n", parsed.DebugString)
		return nil
	}
	printField("start_url", parsed.Value.StartURL.Present(), startURLSummary(parsed.Value), parsed.Value.StartURL.DebugString)
	printField("short_name", parsed.Value.ShortName.Present(), stringSummary(parsed.Value.ShortName), parsed.Value.ShortName.DebugString)
	printField("name", parsed.Value.Name.Present(), stringSummary(parsed.Value.Name), parsed.Value.Name.DebugString)
	printField("icons", parsed.Value.Icons.Present(), iconsSummary(parsed.Value), parsed.Value.Icons.DebugString)
	return nil
}

// readManifestSource fetches the manifest text from a URL or reads it from
// disk, returning the manifest URL when one exists.
func readManifestSource(source string) (string, *url.URL, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		manifestURL, err := url.Parse(source)
		if err != nil {
			return "", nil, fmt.Errorf("parse manifest URL: %w", err)
		}
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Get(source)
		if err != nil {
			return "", nil, fmt.Errorf("fetch manifest: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", nil, fmt.Errorf("read manifest: %w", err)
		}
		return string(body), manifestURL, nil
	}

	body, err := os.ReadFile(source)
	if err != nil {
		return "", nil, fmt.Errorf("read manifest file: %w", err)
	}
	return string(body), nil, nil
}

func printField(name string, present bool, summary, debug string) {
	if present {
		fmt.Printf("✓ %-10s %s\n", name, summary)
		return
	}
	fmt.Printf("✗ %-10s %s\n", name, debug)
}

func stringSummary(f manifest.FieldValue[string]) string {
	if f.Value == nil {
		return ""
	}
	return *f.Value
}

func startURLSummary(fields *manifest.Fields) string {
	if fields.StartURL.Value == nil {
		return ""
	}
	return fields.StartURL.Value.String()
}

func iconsSummary(fields *manifest.Fields) string {
	if fields.Icons.Value == nil {
		return ""
	}
	icons := *fields.Icons.Value
	parts := make([]string, 0, len(icons))
	for _, icon := range icons {
		label := icon.Src.String()
		if len(icon.Sizes) > 0 {
			label += " (" + strings.Join(icon.Sizes, " ") + ")"
		}
		parts = append(parts, label)
	}
	return fmt.Sprintf("%d usable: %s", len(icons), strings.Join(parts, ", "))
}
