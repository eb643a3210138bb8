package main

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClient(t *testing.T) {
	id, err := parseClient(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), id)

	for _, bad := range []string{"", "abc", "0", "-1"} {
		_, err := parseClient(bad)
		assert.ErrorIs(t, err, billingdomain.ErrInvalidClient, bad)
	}
}

func TestParseDate(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	d, err := parseDate("2025-03-20", paris)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 20, 0, 0, 0, 0, paris), d)

	d, err = parseDate("", paris)
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = parseDate("20/03/2025", paris)
	assert.Error(t, err)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "serve", "debt", "invoice", "history", "fleet", "device"} {
		assert.True(t, names[want], want)
	}
}
