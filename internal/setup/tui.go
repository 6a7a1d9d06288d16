// Package setup holds the interactive terminal forms: the configuration
// wizard and the login prompt.
package setup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/vadiminshakov/cobrand/config"
	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/storage/kv"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const wizardTitle = "COBRAND CONFIG WIZARD"

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(wizardTitle))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI walks through the client settings and writes them to path.
func RunTUI(path string) error {
	tmp, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	withDefaults(&tmp)
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(wizardTitle))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point the client at your cobrand backend.\n"))

	fmt.Println(stepStyle.Render("STEP 1: BACKEND"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Description("e.g. https://api.example.com").
				Value(&tmp.APIURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Tenant").
				Description("Sent in the tenant header, leave empty for the root tenant").
				Value(&tmp.Tenant),
			huh.NewInput().
				Title("Request timeout").
				Description("Duration string (e.g. 30s)").
				Value(&tmp.Timeout).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: STATE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the session and wallet be kept?").
				Options(
					huh.NewOption("Write-ahead log (default)", kv.BackendWAL),
					huh.NewOption("JSON file", kv.BackendFile),
					huh.NewOption("Redis", kv.BackendRedis),
					huh.NewOption("Memory (forgotten on exit)", kv.BackendMemory),
				).
				Value(&tmp.Store.Backend),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: STORE SETTINGS")
	var storeFields []huh.Field
	switch tmp.Store.Backend {
	case kv.BackendRedis:
		storeFields = append(storeFields,
			huh.NewInput().Title("Redis address").Value(&tmp.Store.RedisAddr).Validate(required("redis address")),
			huh.NewInput().Title("Redis password").Value(&tmp.Store.RedisPassword).EchoMode(huh.EchoModePassword),
			huh.NewInput().Title("Redis DB").Value(&tmp.Store.RedisDB).Validate(validateNonNegativeInt),
			huh.NewInput().Title("Key namespace").Value(&tmp.Store.Namespace),
		)
	case kv.BackendWAL, kv.BackendFile:
		storeFields = append(storeFields,
			huh.NewInput().Title("State directory").Value(&tmp.Store.Dir).Validate(required("state directory")),
		)
	}
	storeFields = append(storeFields,
		huh.NewInput().
			Title("Retries on server errors").
			Description("0 keeps every call fire-once").
			Value(&tmp.Retry.MaxRetries).
			Validate(validateNonNegativeInt),
	)
	if err := huh.NewForm(huh.NewGroup(storeFields...)).Run(); err != nil {
		return err
	}

	screen("STEP 4: DASHBOARD")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&tmp.Dashboard.Addr),
			huh.NewInput().
				Title("Wallet refresh interval").
				Description("How often serve re-fetches the wallet (0 disables)").
				Value(&tmp.Dashboard.RefreshInterval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"API: %s\nTenant: %s\nStore: %s\nDashboard: %s\n",
		tmp.APIURL, orDash(tmp.Tenant), tmp.Store.Backend, tmp.Dashboard.Addr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	// surface parse errors now rather than on the next run
	if _, err := tmp.Parse(); err != nil {
		return err
	}
	if err := config.WriteFile(path, tmp); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

// PromptLogin asks for credentials. tenant pre-fills the tenant field.
func PromptLogin(tenant string) (domain.Credentials, string, error) {
	var creds domain.Credentials
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Email").Value(&creds.Email).Validate(required("email")),
			huh.NewInput().Title("Password").Value(&creds.Password).EchoMode(huh.EchoModePassword).Validate(required("password")),
			huh.NewInput().Title("Tenant").Value(&tenant),
		),
	).Run()
	if err != nil {
		return domain.Credentials{}, "", err
	}
	return creds, strings.TrimSpace(tenant), nil
}

func withDefaults(tmp *config.ConfigTmp) {
	setDefault := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	setDefault(&tmp.Timeout, "30s")
	setDefault(&tmp.Store.Backend, kv.BackendWAL)
	setDefault(&tmp.Store.Dir, "./state")
	setDefault(&tmp.Store.RedisAddr, "localhost:6379")
	setDefault(&tmp.Store.RedisDB, "0")
	setDefault(&tmp.Retry.MaxRetries, "0")
	setDefault(&tmp.Dashboard.Addr, ":8080")
	setDefault(&tmp.Dashboard.RefreshInterval, "1m")
}

func validateURL(s string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return fmt.Errorf("must be an absolute url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	return nil
}

func validateDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 30s")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
