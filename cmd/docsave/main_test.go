package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/docsave/internal/config"
	"github.com/debemdeboas/docsave/internal/document"
	"github.com/debemdeboas/docsave/internal/repository/remote/remotetest"
)

const savedDoc = `[{"id":"p1","type":"paragraph","content":"hello"}]`

// testConfig points the CLI at a fresh remote server and a SQLite file that
// persists across commands.
func testConfig(t *testing.T) (*config.Config, *remotetest.Server) {
	t.Helper()
	server := remotetest.NewServer()
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Content.ID = "doc-1"
	cfg.Remote.URL = server.URL
	cfg.Local.Path = filepath.Join(t.TempDir(), "docsave.db")
	return cfg, server
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSave(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		failing    bool
		wantErr    bool
		wantOutput string
		wantRemote bool
	}{
		{"remote", savedDoc, false, false, "Saved to remote store", true},
		{"fallback", savedDoc, true, false, "kept a local copy", false},
		{"empty document", `[]`, false, false, "Saved to remote store", true},
		{"malformed", `{"id":"p1"}`, false, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, server := testConfig(t)
			server.SetFailing(tt.failing)

			var out bytes.Buffer
			err := runSave(context.Background(), cfg, zerolog.Nop(), writeDoc(t, tt.content), &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("runSave() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.wantOutput) {
				t.Errorf("Expected output to contain %q, got %q", tt.wantOutput, out.String())
			}
			if _, ok := server.Content("doc-1"); ok != tt.wantRemote {
				t.Errorf("Remote holds content = %v, want %v", ok, tt.wantRemote)
			}
		})
	}
}

func TestRunLoad(t *testing.T) {
	t.Run("nothing stored", func(t *testing.T) {
		cfg, _ := testConfig(t)
		var out bytes.Buffer
		if err := runLoad(context.Background(), cfg, zerolog.Nop(), nil, &out); err != nil {
			t.Fatalf("runLoad failed: %v", err)
		}
		if !strings.Contains(out.String(), "Nothing stored for doc-1") {
			t.Errorf("Unexpected output %q", out.String())
		}
	})

	t.Run("from remote", func(t *testing.T) {
		cfg, server := testConfig(t)
		server.Put("doc-1", savedDoc)

		var out bytes.Buffer
		if err := runLoad(context.Background(), cfg, zerolog.Nop(), nil, &out); err != nil {
			t.Fatalf("runLoad failed: %v", err)
		}
		got, err := document.Deserialize(out.String())
		if err != nil {
			t.Fatalf("Output is not a document: %v", err)
		}
		want, _ := document.Deserialize(savedDoc)
		if !document.Equal(got, want) {
			t.Errorf("Expected %s, got %s", savedDoc, out.String())
		}
	})

	t.Run("local copy after fallback", func(t *testing.T) {
		cfg, server := testConfig(t)
		server.SetFailing(true)
		if err := runSave(context.Background(), cfg, zerolog.Nop(), writeDoc(t, savedDoc), &bytes.Buffer{}); err != nil {
			t.Fatalf("runSave failed: %v", err)
		}
		server.SetFailing(false)
		server.Put("doc-1", `[{"id":"old","type":"paragraph"}]`)

		output := filepath.Join(t.TempDir(), "out.json")
		var out bytes.Buffer
		if err := runLoad(context.Background(), cfg, zerolog.Nop(), []string{"-o", output}, &out); err != nil {
			t.Fatalf("runLoad failed: %v", err)
		}
		data, err := os.ReadFile(output)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := document.Deserialize(string(data))
		want, _ := document.Deserialize(savedDoc)
		if !document.Equal(got, want) {
			t.Errorf("Expected the local copy, got %s", data)
		}
		if !strings.Contains(out.String(), output) {
			t.Errorf("Expected output to name %s, got %q", output, out.String())
		}
	})
}

func TestRunStatus(t *testing.T) {
	cfg, server := testConfig(t)

	var out bytes.Buffer
	if err := runStatus(context.Background(), cfg, &out); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}
	if strings.Count(out.String(), "empty") != 2 {
		t.Errorf("Expected both stores empty, got %q", out.String())
	}

	server.SetFailing(true)
	if err := runSave(context.Background(), cfg, zerolog.Nop(), writeDoc(t, savedDoc), &bytes.Buffer{}); err != nil {
		t.Fatalf("runSave failed: %v", err)
	}
	server.SetFailing(false)
	server.Put("doc-1", `[{"id":"old","type":"paragraph"}]`)

	out.Reset()
	if err := runStatus(context.Background(), cfg, &out); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 blocks") {
		t.Errorf("Expected block counts, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Local copy differs from remote") {
		t.Errorf("Expected a divergence warning, got %q", out.String())
	}

	server.SetFailing(true)
	out.Reset()
	if err := runStatus(context.Background(), cfg, &out); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}
	if !strings.Contains(out.String(), "Internal Server Error") {
		t.Errorf("Expected the remote failure reason, got %q", out.String())
	}
}
