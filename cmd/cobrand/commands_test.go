package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cobrand/config"
)

func TestParseMeta(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]string{}},
		{name: "pairs", raw: "order=42, note = lunch", want: map[string]string{"order": "42", "note": "lunch"}},
		{name: "empty value", raw: "ref=", want: map[string]string{"ref": ""}},
		{name: "missing separator", raw: "order", wantErr: true},
		{name: "missing key", raw: "=1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMeta(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("10.50")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("10.5")))

	_, err = parseAmount("")
	assert.Error(t, err)
	_, err = parseAmount("ten")
	assert.Error(t, err)
}

func TestReadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passport.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	doc, err := readDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf", doc.Name)
	assert.Equal(t, []byte("%PDF"), doc.Content)

	_, err = readDocument("")
	assert.Error(t, err)
}

func TestCommandFlagsDoNotCollide(t *testing.T) {
	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			fs := flag.NewFlagSet(name, flag.ContinueOnError)
			config.RegisterFlags(fs)
			assert.NotPanics(t, func() { cmd.flags(fs) })
			assert.NotEmpty(t, cmd.summary)
		})
	}
}
