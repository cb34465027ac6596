package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/lysyi3m/feedwatch/app/cfg"
	"github.com/lysyi3m/feedwatch/app/feed"
)

const checkTitleWidth = 60

var checkCmd = &cobra.Command{
	Use:   "check <url|file>",
	Short: "Fetch and parse a single feed once",
	Long: `Fetch a feed URL (or read a local file) once, parse it and print the
normalized entries with their fingerprints.

Exit codes:
  0 - Feed fetched and parsed
  1 - Fetch or parse failed (error details printed to stderr)

Example:
  feedwatch check https://example.org/feed.xml
  feedwatch check ./testdata/atom.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	checkCmd.Flags().String("user-agent", "", "user agent (default: feedwatch/<version>)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	source := args[0]

	data, err := readSource(cmd, source)
	if err != nil {
		return err
	}

	channel, err := feed.NewParser().Run(data)
	if err != nil {
		var parseErr *feed.ParseError
		if errors.As(err, &parseErr) {
			return fmt.Errorf("failed to parse %s (%s): %w", source, parseErr.Kind, err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title:   %s\n", channel.Title)
	fmt.Fprintf(out, "Entries: %d\n\n", len(channel.Entries))

	rows := make([][]string, 0, len(channel.Entries))
	for i, entry := range channel.Entries {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			runewidth.Truncate(entry.Title, checkTitleWidth, "…"),
			entry.PublishedDate,
			entry.Fingerprint,
		})
	}

	for _, line := range formatTable([]string{"#", "Title", "Published", "Fingerprint"}, rows) {
		fmt.Fprintln(out, line)
	}
	return nil
}

func readSource(cmd *cobra.Command, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return data, nil
	}

	url, err := feed.NormalizeURL(source)
	if err != nil {
		return nil, err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	userAgent, _ := cmd.Flags().GetString("user-agent")
	if userAgent == "" {
		userAgent = "feedwatch/" + cfg.GetVersion()
	}

	fetcher := feed.NewFetcher(userAgent, timeout)
	defer fetcher.Close()

	result, err := fetcher.Fetch(context.Background(), url, feed.Validators{})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Fetched %s in %s (%d bytes)\n",
		url, result.Duration.Round(time.Millisecond), len(result.Body))
	return result.Body, nil
}

// formatTable pads every column to its widest cell by display width.
func formatTable(header []string, rows [][]string) []string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	separator := make([]string, len(header))
	for i, w := range widths {
		separator[i] = strings.Repeat("-", w)
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, formatRow(header, widths), formatRow(separator, widths))
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths))
	}
	return lines
}

func formatRow(row []string, widths []int) string {
	var sb strings.Builder
	for i, w := range widths {
		content := ""
		if i < len(row) {
			content = row[i]
		}
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(content)
		if i < len(widths)-1 {
			sb.WriteString(strings.Repeat(" ", w-runewidth.StringWidth(content)))
		}
	}
	return sb.String()
}
