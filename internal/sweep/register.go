package sweep

import (
	"context"
	"fmt"
	"strings"

	"github.com/lance13c/roster/internal/browser"
	"github.com/lance13c/roster/internal/domain"
	"github.com/lance13c/roster/internal/logging"
)

var emailQuotes = strings.NewReplacer(`"`, "", "'", "")

// sanitizeEmail strips quote characters and surrounding whitespace
func sanitizeEmail(v string) string {
	return strings.TrimSpace(emailQuotes.Replace(v))
}

// extractContact opens the profile dialog behind trigger and reads the email field.
// It never fails: any problem yields an empty email and closes the dialog. Cancellation
// returns at once.
func (e *Engine) extractContact(ctx context.Context, trigger browser.Ref) (string, string) {
	name := domain.UnknownName
	if text, err := e.view.Text(ctx, trigger); err == nil && strings.TrimSpace(text) != "" {
		name = strings.TrimSpace(text)
	}

	if err := e.view.ScrollIntoView(ctx, trigger); err != nil {
		logging.Warn("  ✗ Failed to scroll to profile link of %s: %v", name, err)
		e.closeDetail(ctx)
		return name, ""
	}
	if err := browser.Pause(ctx, e.timeouts.StepPause); err != nil {
		return name, ""
	}

	if err := e.view.Invoke(ctx, trigger); err != nil {
		logging.Warn("  ✗ Failed to click user link of %s: %v", name, err)
		e.closeDetail(ctx)
		return name, ""
	}

	// Earlier profiles linger in closed dialogs; read only from the one this click opened
	err := browser.WaitUntil(ctx, e.timeouts.Modal, e.timeouts.PollInterval, func(ctx context.Context) (bool, error) {
		_, found, err := e.view.FindOne(ctx, e.sel.Modal)
		return found, err
	})
	if err != nil {
		logging.Warn("  ✗ Profile dialog of %s did not open: %v", name, err)
		e.closeDetail(ctx)
		return name, ""
	}

	var email string
	err = browser.WaitUntil(ctx, e.timeouts.Extract, e.timeouts.PollInterval, func(ctx context.Context) (bool, error) {
		ref, found, err := e.view.FindOne(ctx, e.sel.EmailInput)
		if err != nil || !found {
			return false, err
		}
		value, err := e.view.Value(ctx, ref)
		if err != nil {
			return false, err
		}
		if !strings.Contains(value, "@") {
			return false, nil
		}
		email = sanitizeEmail(value)
		return email != "", nil
	})
	if err != nil {
		logging.Warn("  ✗ No email input found for %s", name)
		email = ""
	}

	e.closeDetail(ctx)
	return name, email
}

// closeDetail clicks the dialog's close control if there is one, then waits for any
// modal to go away
func (e *Engine) closeDetail(ctx context.Context) {
	if ref, found, err := e.view.FindOne(ctx, e.sel.ModalClose); err == nil && found {
		if err := e.view.Invoke(ctx, ref); err != nil {
			logging.Debug("Close control: %v", err)
		}
	}
	e.waitModalClosed(ctx)
}

func (e *Engine) waitModalClosed(ctx context.Context) {
	err := browser.WaitUntilNot(ctx, e.timeouts.Modal, e.timeouts.PollInterval, func(ctx context.Context) (bool, error) {
		_, found, err := e.view.FindOne(ctx, e.sel.Modal)
		return found, err
	})
	if err != nil {
		logging.Debug("Modal still open: %v", err)
	}
}

// register clicks the pending marker, confirms, accepts at most one native dialog and
// waits for the modal to close. A nil error means the registration went through.
func (e *Engine) register(ctx context.Context, ref browser.Ref) error {
	if err := e.view.ScrollIntoView(ctx, ref); err != nil {
		return fmt.Errorf("scroll to pending marker: %w", err)
	}
	if err := browser.Pause(ctx, e.timeouts.StepPause); err != nil {
		return err
	}

	if err := e.view.Invoke(ctx, ref); err != nil {
		return fmt.Errorf("click pending marker: %w", err)
	}

	var confirm browser.Ref
	err := browser.WaitUntil(ctx, e.timeouts.Confirm, e.timeouts.PollInterval, func(ctx context.Context) (bool, error) {
		ref, found, err := e.view.FindOne(ctx, e.sel.Confirm)
		if err != nil || !found {
			return false, err
		}
		enabled, err := e.view.Enabled(ctx, ref)
		if err != nil {
			return false, err
		}
		confirm = ref
		return enabled, nil
	})
	if err != nil {
		return fmt.Errorf("wait for confirmation: %w", err)
	}

	if err := e.view.Invoke(ctx, confirm); err != nil {
		return fmt.Errorf("click confirmation: %w", err)
	}
	if err := browser.Pause(ctx, e.timeouts.StepPause); err != nil {
		return err
	}

	accepted, err := e.view.DrainDialog(ctx, e.timeouts.Dialog)
	if err != nil {
		return fmt.Errorf("drain dialog: %w", err)
	}
	if accepted {
		logging.Debug("    Accepted confirmation dialog")
	}

	e.waitModalClosed(ctx)
	return nil
}
