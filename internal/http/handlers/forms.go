package handlers

import (
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/schema"

	"taskboard/internal/common"
	"taskboard/internal/models"
	"taskboard/internal/security"
)

const MinUsernameLength = 3

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

func decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	return formDecoder.Decode(dst, r.PostForm)
}

type RegisterForm struct {
	Username string `schema:"username"`
	Email    string `schema:"email"`
	Password string `schema:"password"`
	Confirm  string `schema:"confirm"`
}

func (f *RegisterForm) Validate() common.FieldErrors {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)

	errs := common.FieldErrors{}
	if utf8.RuneCountInString(f.Username) < MinUsernameLength {
		errs.Add("username", "Username must be at least 3 characters")
	}
	if !validEmail(f.Email) {
		errs.Add("email", "Enter a valid email address")
	}
	if utf8.RuneCountInString(f.Password) < security.MinPasswordLength {
		errs.Add("password", "Password must be at least 6 characters")
	} else if !security.ValidatePassword(f.Password) {
		errs.Add("password", "Password is too long")
	}
	if f.Confirm != f.Password {
		errs.Add("confirm", "Passwords do not match")
	}
	return errs
}

// redacted drops the secrets before the form is echoed back to the page.
func (f RegisterForm) redacted() RegisterForm {
	f.Password, f.Confirm = "", ""
	return f
}

func validEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

type LoginForm struct {
	Email    string `schema:"email"`
	Password string `schema:"password"`
}

type TaskForm struct {
	Title       string `schema:"title"`
	Description string `schema:"description"`
	DueDate     string `schema:"dueDate"`
}

func taskFormFrom(t *models.Task) TaskForm {
	return TaskForm{Title: t.Title, Description: t.Description, DueDate: t.DueDateString()}
}

// Validate checks the form and converts it into store input. An unparseable
// due date is dropped rather than rejected.
func (f *TaskForm) Validate() (models.TaskInput, common.FieldErrors) {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)

	errs := common.FieldErrors{}
	if f.Title == "" {
		errs.Add("title", "Title is required")
	}
	due := ParseDueDate(f.DueDate)
	if due == nil {
		f.DueDate = ""
	} else {
		f.DueDate = due.Format(models.DateLayout)
	}
	return models.TaskInput{Title: f.Title, Description: f.Description, DueDate: due}, errs
}

var dueDateLayouts = []string{
	models.DateLayout,
	time.RFC3339,
	"2006-01-02T15:04",
}

// ParseDueDate normalizes s to a calendar date at UTC midnight, or nil when
// s is empty or unparseable.
func ParseDueDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}
