package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cells(vals ...string) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func TestParseHeaders(t *testing.T) {
	headers := parseHeaders(cells(" Question ", "ANSWER", "Link"))
	assert.Equal(t, []string{"question", "answer", "link"}, headers)
}

func TestValidateHeaders(t *testing.T) {
	assert.NoError(t, validateHeaders([]string{"question", "answer", "link"}))

	err := validateHeaders([]string{"question", "link"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answer")
}

func TestParseRows_PadsShortRows(t *testing.T) {
	headers := []string{"question", "answer", "link"}
	rows := ParseRows(headers, [][]interface{}{
		cells("q1", "a1"),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "q1", rows[0].Get("question"))
	assert.Equal(t, "", rows[0].Get("link"))
}

func TestParseRows_SkipsBlankRows(t *testing.T) {
	headers := []string{"question", "answer"}
	rows := ParseRows(headers, [][]interface{}{
		cells("q1", "a1"),
		cells("", "  "),
		cells("q3", "a3"),
	})

	require.Len(t, rows, 2)
	// Row numbers track sheet position, not slice position: row 1 is headers.
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, 4, rows[1].Number)
}

func TestParseRows_ActiveColumnFilter(t *testing.T) {
	headers := []string{"question", "answer", "active"}
	rows := ParseRows(headers, [][]interface{}{
		cells("q1", "a1", "TRUE"),
		cells("q2", "a2", "FALSE"),
		cells("q3", "a3", "true"),
		cells("q4", "a4", ""),
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "q1", rows[0].Get("question"))
	assert.Equal(t, "q3", rows[1].Get("question"))
}

func TestParseRows_KeepsRowsWithMissingRequiredValues(t *testing.T) {
	// Rows with a blank question or answer pass through so the pipeline can
	// report them individually instead of dropping them silently.
	headers := []string{"question", "answer"}
	rows := ParseRows(headers, [][]interface{}{
		cells("q1", ""),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Get("answer"))
}

func TestRowGet_TrimsValues(t *testing.T) {
	row := Row{Number: 2, Fields: map[string]string{"question": "  spaced  "}}
	assert.Equal(t, "spaced", row.Get("question"))
	assert.Equal(t, "", row.Get("missing"))
}
