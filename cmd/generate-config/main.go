package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/debemdeboas/docsave/internal/config"
)

const header = "# docsave configuration example\n# Copy this file to config.yaml (or config.toml) and customize as needed.\n# S3 credentials are read from " +
	config.EnvS3AccessKeyID + " and " + config.EnvS3SecretAccessKey + ".\n\n"

func render(cfg *config.Config, format string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	switch format {
	case "toml":
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
	default:
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func main() {
	// Create a config with defaults applied
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	// Write to file or stdout
	outputFile := "config.example.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(outputFile), ".toml") {
		format = "toml"
	}

	output, err := render(cfg, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, config.ErrGenerateConfigFmt+"\n", err)
		os.Exit(1)
	}

	if outputFile == "-" {
		os.Stdout.Write(output)
		return
	}
	if err := os.WriteFile(outputFile, output, 0644); err != nil {
		fmt.Fprintf(os.Stderr, config.ErrWriteConfigContentFmt+"\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated example config: %s\n", outputFile)
}
