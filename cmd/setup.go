package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
	"google.golang.org/api/option"

	"github.com/lance13c/roster/internal/browser"
	"github.com/lance13c/roster/internal/config"
	"github.com/lance13c/roster/internal/journal"
	"github.com/lance13c/roster/internal/ledger"
	"github.com/lance13c/roster/internal/logging"
)

// openSession starts Chrome and logs in to the portal
func openSession(ctx context.Context, cfg *config.Config) (*browser.Session, error) {
	password, err := portalPassword(cfg)
	if err != nil {
		return nil, err
	}

	session, err := browser.NewSession(browser.Options{
		Headless:      cfg.Site.Headless,
		ChromePath:    cfg.Site.ChromePath,
		ActionTimeout: cfg.Timeouts.Action,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	err = session.Login(ctx, browser.LoginForm{
		URL:              cfg.LoginURL(),
		UserSelector:     cfg.Selectors.LoginUser,
		PasswordSelector: cfg.Selectors.LoginPassword,
		SubmitSelector:   cfg.Selectors.LoginSubmit,
		Username:         cfg.Auth.Username,
		Password:         password,
	})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return session, nil
}

// portalPassword returns the configured password, prompting on a terminal when it is unset
func portalPassword(cfg *config.Config) (string, error) {
	if cfg.Auth.Username == "" {
		return "", errors.New("auth.username is not set (or export HR_USERNAME)")
	}
	if cfg.Auth.Password != "" {
		return cfg.Auth.Password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("auth.password is not set (or export HR_PASSWORD)")
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", cfg.Auth.Username)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

// openLedger connects to the spreadsheet. Without credentials or a spreadsheet id the
// ledger is unreachable and every merge is skipped with an error log.
func openLedger(ctx context.Context, cfg *config.Config) *ledger.Ledger {
	if cfg.Sheets.SpreadsheetID == "" {
		logging.Error("sheets.spreadsheet_id is not set, participants will not be saved")
		return ledger.New(nil)
	}

	creds, err := ledger.ResolveCredentials(ctx, cfg.Sheets.CredentialsJSON, cfg.ResolvePath(cfg.Sheets.CredentialsFile))
	if err != nil {
		logging.Error("Error authenticating with Google Sheets: %v", err)
		return ledger.New(nil)
	}

	store, err := ledger.NewSheetsStore(ctx, cfg.Sheets.SpreadsheetID, option.WithCredentials(creds))
	if err != nil {
		logging.Error("Error connecting to Google Sheets: %v", err)
		return ledger.New(nil)
	}

	logging.Info("Successfully authenticated with Google Sheets.")
	return ledger.New(store)
}

// openJournal opens the run journal, or returns nil when it is disabled
func openJournal(cfg *config.Config) (*journal.DB, error) {
	if cfg.Journal.Disabled || cfg.Journal.Path == "" {
		return nil, nil
	}
	db, err := journal.New(cfg.ResolvePath(cfg.Journal.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return db, nil
}
