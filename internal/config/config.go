package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lance13c/roster/internal/domain"
)

// Config represents the complete roster configuration
type Config struct {
	Site      SiteConfig     `yaml:"site"`
	Auth      AuthConfig     `yaml:"auth"`
	Sheets    SheetsConfig   `yaml:"sheets"`
	Courses   []CourseConfig `yaml:"courses"`
	Selectors SelectorConfig `yaml:"selectors"`
	Timeouts  TimeoutConfig  `yaml:"timeouts"`
	Limits    LimitConfig    `yaml:"limits"`
	Journal   JournalConfig  `yaml:"journal"`

	// Path of the file this config was loaded from, empty for defaults
	Path string `yaml:"-"`
}

// SiteConfig describes the training portal
type SiteConfig struct {
	BaseURL    string `yaml:"base_url"`
	LoginPath  string `yaml:"login_path"`
	CoursePath string `yaml:"course_path"` // must contain {id}
	Headless   bool   `yaml:"headless"`
	ChromePath string `yaml:"chrome_path,omitempty"`
}

// AuthConfig holds portal credentials
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

// SheetsConfig points at the spreadsheet holding one worksheet per course
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsFile string `yaml:"credentials_file"`

	// Inline service account JSON, only ever set from the environment
	CredentialsJSON string `yaml:"-"`
}

// CourseConfig maps a course to its ledger worksheet
type CourseConfig struct {
	ID     string `yaml:"id"`
	Ledger string `yaml:"ledger"`
}

// SelectorConfig holds the CSS selectors used to drive the enrollee view
type SelectorConfig struct {
	Pending       string `yaml:"pending"`
	Row           string `yaml:"row"`
	DetailTrigger string `yaml:"detail_trigger"`
	DetailKey     string `yaml:"detail_key"` // attribute of the detail trigger naming the enrollee's record
	Confirm       string `yaml:"confirm"`
	Modal         string `yaml:"modal"`
	ModalClose    string `yaml:"modal_close"`
	EmailInput    string `yaml:"email_input"`
	PageButton    string `yaml:"page_button"` // fmt pattern taking the page number
	NextButton    string `yaml:"next_button"`
	LoginUser     string `yaml:"login_user"`
	LoginPassword string `yaml:"login_password"`
	LoginSubmit   string `yaml:"login_submit"`
}

// TimeoutConfig holds the bounded waits used while driving the page
type TimeoutConfig struct {
	Confirm      time.Duration `yaml:"confirm"`
	Dialog       time.Duration `yaml:"dialog"`
	Extract      time.Duration `yaml:"extract"`
	Modal        time.Duration `yaml:"modal"`
	PageSettle   time.Duration `yaml:"page_settle"`
	StepPause    time.Duration `yaml:"step_pause"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Action       time.Duration `yaml:"action"`
}

// LimitConfig bounds retries
type LimitConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	MaxSweeps   int `yaml:"max_sweeps"`
	MaxPages    int `yaml:"max_pages"`
}

// JournalConfig locates the local run journal
type JournalConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled,omitempty"`

	// Page snapshots are written here when a registration fails; empty disables them
	SnapshotDir string `yaml:"snapshot_dir"`
}

// DefaultSelectors returns the selectors matching the HR training portal. Closed dialogs
// stay in the DOM, so the dialog selectors only match inside the open one.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Pending:       `i.icon-checkbox-checked2[onclick*="single"]`,
		Row:           "tr",
		DetailTrigger: `a[onclick*="dialogUserInfo"]`,
		DetailKey:     "onclick",
		Confirm:       "#confirm_btn",
		Modal:         ".modal.fade.in, .modal.show",
		ModalClose:    ".modal.show button.close, .modal.in button.close",
		EmailInput:    `.modal.show input[value*="@"], .modal.in input[value*="@"]`,
		PageButton:    `.page-navigation input.number-button[pagenumber='%d']`,
		NextButton:    ".page-navigation input.next-button",
		LoginUser:     `input[name="username"]`,
		LoginPassword: `input[name="password"]`,
		LoginSubmit:   `button[type="submit"]`,
	}
}

// DefaultTimeouts returns the waits the portal tolerates
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Confirm:      5 * time.Second,
		Dialog:       2 * time.Second,
		Extract:      5 * time.Second,
		Modal:        2 * time.Second,
		PageSettle:   2 * time.Second,
		StepPause:    500 * time.Millisecond,
		PollInterval: 200 * time.Millisecond,
		Action:       5 * time.Second,
	}
}

// DefaultCourses returns the course map the project started with
func DefaultCourses() []CourseConfig {
	return []CourseConfig{
		{ID: "8473", Ledger: "Chest pain"},
		{ID: "8469", Ledger: "Antibiotic"},
		{ID: "8472", Ledger: "Kidney"},
		{ID: "8474", Ledger: "ECG"},
		{ID: "8470", Ledger: "Zurkh em"},
		{ID: "8475", Ledger: "Glucocorticoid"},
		{ID: "8471", Ledger: "Hypertension"},
	}
}

// DefaultConfig returns a new config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:    "https://hr.hdc.gov.mn",
			LoginPath:  "/login",
			CoursePath: "/trainings/{id}?accordion=student",
			Headless:   true,
		},
		Sheets: SheetsConfig{
			CredentialsFile: "credentials.json",
		},
		Selectors: DefaultSelectors(),
		Timeouts:  DefaultTimeouts(),
		Limits: LimitConfig{
			MaxAttempts: 3,
			MaxSweeps:   100,
			MaxPages:    50,
		},
		Journal: JournalConfig{
			Path:        ".roster/roster.db",
			SnapshotDir: ".roster/snapshots",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return NewValidationError("site.base_url is required")
	}

	if !strings.Contains(c.Site.CoursePath, "{id}") {
		return NewValidationError("site.course_path must contain {id}")
	}

	if len(c.Courses) == 0 {
		return NewValidationError("at least one course is required")
	}

	seen := make(map[string]bool, len(c.Courses))
	for i, course := range c.Courses {
		if strings.TrimSpace(course.ID) == "" {
			return NewValidationError(fmt.Sprintf("courses[%d].id is required", i))
		}
		if strings.TrimSpace(course.Ledger) == "" {
			return NewValidationError(fmt.Sprintf("courses[%d].ledger is required for course %s", i, course.ID))
		}
		if seen[course.ID] {
			return NewValidationError("duplicate course id: " + course.ID)
		}
		seen[course.ID] = true
	}

	if !strings.Contains(c.Selectors.PageButton, "%d") {
		return NewValidationError("selectors.page_button must contain %d")
	}

	if c.Limits.MaxAttempts < 1 {
		return NewValidationError("limits.max_attempts must be at least 1")
	}

	return nil
}

// Jobs returns the configured courses as jobs, optionally restricted to the given ids.
// Unknown ids are reported as an error.
func (c *Config) Jobs(only ...string) ([]domain.CourseJob, error) {
	byID := make(map[string]CourseConfig, len(c.Courses))
	for _, course := range c.Courses {
		byID[course.ID] = course
	}

	var jobs []domain.CourseJob
	if len(only) == 0 {
		for _, course := range c.Courses {
			jobs = append(jobs, domain.CourseJob{CourseID: course.ID, Ledger: course.Ledger})
		}
		return jobs, nil
	}

	for _, id := range only {
		course, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("course %s is not configured", id)
		}
		jobs = append(jobs, domain.CourseJob{CourseID: course.ID, Ledger: course.Ledger})
	}
	return jobs, nil
}

// CourseURL returns the enrollee view of a course
func (c *Config) CourseURL(courseID string) string {
	return strings.TrimRight(c.Site.BaseURL, "/") + strings.ReplaceAll(c.Site.CoursePath, "{id}", courseID)
}

// LoginURL returns the portal's login page
func (c *Config) LoginURL() string {
	return strings.TrimRight(c.Site.BaseURL, "/") + c.Site.LoginPath
}

// SpreadsheetURL returns the browser URL of the ledger spreadsheet, empty when unset
func (c *Config) SpreadsheetURL() string {
	if c.Sheets.SpreadsheetID == "" {
		return ""
	}
	return "https://docs.google.com/spreadsheets/d/" + c.Sheets.SpreadsheetID
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Message
}

// NewValidationError creates a new validation error
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}
