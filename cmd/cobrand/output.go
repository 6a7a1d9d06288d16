package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
	"github.com/vadiminshakov/cobrand/internal/wallet"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	good   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	bad    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F5F"}
	muted  = lipgloss.AdaptiveColor{Light: "#9C9C9C", Dark: "#6C6C6C"}

	titleStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(14)
	okStyle    = lipgloss.NewStyle().Foreground(good)
	errStyle   = lipgloss.NewStyle().Foreground(bad).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(bad)
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
)

type row struct {
	label, value string
}

func card(title string, rows ...row) string {
	lines := []string{titleStyle.Render(title)}
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(r.label)+r.value)
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func printSession(s domain.Session) {
	rows := []row{
		{"user", s.Username},
		{"name", s.Name},
		{"email", s.Email},
		{"role", s.Role},
		{"user type", s.UserType},
		{"kyc", yesNo(s.KYCCompleted)},
		{"kyb", yesNo(s.KYBCompleted)},
	}
	if s.Tenant != "" {
		rows = append(rows, row{"tenant", s.Tenant})
	}
	if !s.ExpiresAt.IsZero() {
		rows = append(rows, row{"expires", s.ExpiresAt.Local().Format(time.RFC1123)})
	}
	fmt.Println(card("Session", rows...))
}

func printWallet(e wallet.Entry) {
	fmt.Println(card("Wallet",
		row{"wallet", fmt.Sprint(e.Snapshot.WalletID)},
		row{"balance", e.Snapshot.CurrentBalance.StringFixed(2) + " " + e.Snapshot.Currency},
		row{"status", e.Snapshot.Status},
		row{"revision", fmt.Sprint(e.Revision)},
		row{"fetched", e.FetchedAt.Local().Format(time.RFC1123)},
	))
}

func printQRCode(q domain.QRCode) {
	rows := []row{
		{"id", fmt.Sprint(q.QRCodeID)},
		{"wallet", fmt.Sprint(q.WalletID)},
		{"type", string(q.QRType)},
		{"currency", q.CurrencyCode},
		{"payload", q.QRCode},
	}
	if q.Amount != nil {
		rows = append(rows, row{"amount", q.Amount.String()})
	}
	if q.MetaData != "" {
		rows = append(rows, row{"metadata", q.MetaData})
	}
	fmt.Println(card("QR code", rows...))
}

// printJSON writes v indented, for listings.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func success(format string, args ...any) {
	fmt.Println(okStyle.Render("✓ " + fmt.Sprintf(format, args...)))
}

func warn(format string, args ...any) {
	fmt.Fprintln(os.Stderr, warnStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// fail prints err and exits. Backend failures print their envelope.
func fail(err error) {
	if apiErr, ok := gateway.AsAPIError(err); ok {
		fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("%d %s", apiErr.StatusCode, apiErr.ErrorCode)))
		for _, msg := range apiErr.Message {
			fmt.Fprintln(os.Stderr, "  "+msg)
		}
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
	os.Exit(1)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
