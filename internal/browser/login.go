package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/lance13c/roster/internal/logging"
)

// LoginForm describes a username/password login page
type LoginForm struct {
	URL              string
	UserSelector     string
	PasswordSelector string
	SubmitSelector   string
	Username         string
	Password         string
}

// Login fills and submits the login form, then waits for the password field to go away
func (s *Session) Login(ctx context.Context, form LoginForm) error {
	if form.Username == "" || form.Password == "" {
		return errors.New("username and password are required")
	}

	logging.Info("Logging in as %s...", form.Username)
	if err := s.Navigate(ctx, form.URL); err != nil {
		return err
	}

	tctx, cancel := s.scope(ctx, 15*time.Second)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.WaitVisible(form.UserSelector, chromedp.ByQuery),
		chromedp.Clear(form.UserSelector, chromedp.ByQuery),
		chromedp.SendKeys(form.UserSelector, form.Username, chromedp.ByQuery),
		chromedp.WaitVisible(form.PasswordSelector, chromedp.ByQuery),
		chromedp.SendKeys(form.PasswordSelector, form.Password, chromedp.ByQuery),
		chromedp.Click(form.SubmitSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	err = WaitUntilNot(ctx, 10*time.Second, 250*time.Millisecond, func(ctx context.Context) (bool, error) {
		_, found, err := s.FindOne(ctx, form.PasswordSelector)
		return found, err
	})
	if err != nil {
		return fmt.Errorf("login did not leave the login page: %w", err)
	}

	logging.Info("✓ Login successful")
	return nil
}
