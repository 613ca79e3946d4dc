package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/debemdeboas/docsave/internal/config"
	"github.com/debemdeboas/docsave/internal/document"
	"github.com/debemdeboas/docsave/internal/editor"
	"github.com/debemdeboas/docsave/internal/logger"
	"github.com/debemdeboas/docsave/internal/persistence"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/session"
	"github.com/debemdeboas/docsave/internal/util"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

const usage = `Usage: docsave [-config path] [-id content-id] <command>

Commands:
  save <file.json>   save a document (remote first, local fallback)
  load [-o file]     load the stored document (local first, then remote)
  status             show what each store holds
`

func main() {
	flags := flag.NewFlagSet("docsave", flag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to the YAML or TOML config file")
	contentID := flags.String("id", "", "content id (defaults to content.id from the config)")
	verbose := flags.Bool("v", false, "log at debug level")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flags.Parse(os.Args[1:])

	godotenv.Load()

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error loading config: "+err.Error()))
		os.Exit(1)
	}
	cfg := config.AppConfig
	if *contentID != "" {
		cfg.Content.ID = *contentID
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(level, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	repository.SetLogger(logger.Component(log, "repository"))

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch args[0] {
	case "save":
		if len(args) < 2 {
			flags.Usage()
			os.Exit(2)
		}
		err = runSave(ctx, cfg, log, args[1], os.Stdout)
	case "load":
		err = runLoad(ctx, cfg, log, args[1:], os.Stdout)
	case "status":
		err = runStatus(ctx, cfg, os.Stdout)
	default:
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// stores opens the configured local and remote stores. The caller closes
// the local store.
func stores(ctx context.Context, cfg *config.Config) (repository.LocalRepository, repository.RemoteRepository, error) {
	localRepo, err := session.OpenLocal(cfg.Local)
	if err != nil {
		return nil, nil, err
	}
	remoteRepo, err := session.OpenRemote(ctx, cfg.Remote)
	if err != nil {
		return nil, nil, multierr.Append(err, localRepo.Close())
	}
	return localRepo, remoteRepo, nil
}

func openSession(ctx context.Context, cfg *config.Config, log zerolog.Logger, buf *editor.Buffer) (*session.Session, error) {
	localRepo, remoteRepo, err := stores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(session.Config{ContentID: repository.ContentID(cfg.Content.ID)}, localRepo, remoteRepo, buf, log)
	if err != nil {
		return nil, multierr.Append(err, localRepo.Close())
	}
	sess.CloseWith(localRepo)
	return sess, nil
}

func runSave(ctx context.Context, cfg *config.Config, log zerolog.Logger, path string, out io.Writer) (err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := document.Deserialize(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	buf := editor.NewBuffer(doc)
	sess, err := openSession(ctx, cfg, log, buf)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, sess.Close())
	}()

	// Bind without loading: the file is the document to save.
	sess.Bind()
	outcome := sess.Save(ctx)
	st := sess.Publisher().State()

	fmt.Fprintln(out, labelStyle.Render("Content: ")+string(sess.ContentID()))
	switch outcome {
	case persistence.OutcomeSaved:
		fmt.Fprintln(out, okStyle.Render("Saved to remote store")+" "+dimStyle.Render(st.LastSaved.Local().Format(time.Kitchen)))
	case persistence.OutcomeFallback:
		if st.Unprotected {
			fmt.Fprintln(out, errStyle.Render("Unsaved, no fallback available: ")+st.ErrorMessage())
			return errors.New("document not stored")
		}
		fmt.Fprintln(out, warnStyle.Render("Remote save failed, kept a local copy: ")+st.ErrorMessage())
	case persistence.OutcomeRejected:
		fmt.Fprintln(out, errStyle.Render("Rejected: ")+st.ErrorMessage())
		return errors.New("document rejected")
	case persistence.OutcomeSkipped:
		fmt.Fprintln(out, dimStyle.Render("Nothing to save"))
	}
	return nil
}

func runLoad(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string, out io.Writer) (err error) {
	flags := flag.NewFlagSet("load", flag.ContinueOnError)
	output := flags.String("o", "", "write the document to a file instead of stdout")
	if err := flags.Parse(args); err != nil {
		return err
	}

	buf := editor.NewBuffer(nil)
	sess, err := openSession(ctx, cfg, log, buf)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, sess.Close())
	}()

	if err := sess.Open(ctx); err != nil {
		return err
	}
	content, ok := document.Serialize(buf.Document())
	if !ok {
		fmt.Fprintln(out, dimStyle.Render("Nothing stored for "+string(sess.ContentID())))
		return nil
	}

	if *output == "" {
		fmt.Fprintln(out, content)
		return nil
	}
	if err := os.WriteFile(*output, []byte(content+"\n"), 0o644); err != nil {
		return err
	}
	fmt.Fprintln(out, okStyle.Render("Wrote ")+*output)
	return nil
}

func runStatus(ctx context.Context, cfg *config.Config, out io.Writer) error {
	localRepo, remoteRepo, err := stores(ctx, cfg)
	if err != nil {
		return err
	}
	defer localRepo.Close()

	id := repository.ContentID(cfg.Content.ID).OrDefault()
	fmt.Fprintln(out, labelStyle.Render("Content: ")+string(id)+" "+dimStyle.Render("("+repository.Key(id)+")"))

	localContent, localOK := localRepo.Get(ctx, id)
	fmt.Fprintln(out, labelStyle.Render("Local ("+cfg.Local.Type+"): ")+describe(localContent, localOK))

	remoteContent, remoteOK, rerr := remoteRepo.Load(ctx, id)
	if rerr != nil {
		fmt.Fprintln(out, labelStyle.Render("Remote ("+cfg.Remote.Type+"): ")+errStyle.Render(repository.Reason(rerr)))
	} else {
		fmt.Fprintln(out, labelStyle.Render("Remote ("+cfg.Remote.Type+"): ")+describe(remoteContent, remoteOK))
	}

	switch {
	case localOK && remoteOK && localContent != remoteContent:
		fmt.Fprintln(out, warnStyle.Render("Local copy differs from remote; the next load uses the local copy"))
	case localOK && remoteOK:
		fmt.Fprintln(out, okStyle.Render("In sync"))
	}
	return nil
}

func describe(content string, ok bool) string {
	if !ok {
		return dimStyle.Render("empty")
	}
	doc, err := document.Deserialize(content)
	if err != nil {
		return warnStyle.Render("malformed") + " " + dimStyle.Render(util.ShortHash(content, 12))
	}
	return okStyle.Render(fmt.Sprintf("%d blocks", len(doc))) + " " + dimStyle.Render(fmt.Sprintf("%d bytes, %s", len(content), util.ShortHash(content, 12)))
}
