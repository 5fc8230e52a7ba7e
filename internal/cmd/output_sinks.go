package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pixelctl/pixelctl/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// openSink opens path for writing, creating its directory. "" and "-" write
// to stdout.
func openSink(cmd *cobra.Command, path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// outputPath resolves --out. A directory target gets name plus the format's
// extension.
func outputPath(cmd *cobra.Command, name string, format output.Format) string {
	outPath, _ := cmd.Flags().GetString("out")
	outPath = strings.TrimSpace(outPath)
	if outPath == "" || outPath == "-" {
		return outPath
	}
	if strings.HasSuffix(outPath, string(filepath.Separator)) {
		return filepath.Join(outPath, name+"."+format.Extension())
	}
	if info, err := os.Stat(outPath); err == nil && info.IsDir() {
		return filepath.Join(outPath, name+"."+format.Extension())
	}
	return outPath
}

// render writes a table or JSON document to the --out sink.
func render(cmd *cobra.Command, name string, format output.Format, value any, table func() string) error {
	sink, err := openSink(cmd, outputPath(cmd, name, format))
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	var text string
	if format == output.FormatJSON {
		text, err = output.JSON(value)
		if err != nil {
			return err
		}
	} else {
		text = table()
	}

	if _, err := fmt.Fprintln(sink.writer, strings.TrimRight(text, "\n")); err != nil {
		return err
	}
	if sink.path != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", sink.path)
	}
	return nil
}
