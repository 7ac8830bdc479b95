package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telos/internal/errs"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "object not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "object not found", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("CONFLICT", "stream moved", map[string]string{"stream": "main"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [CONFLICT]")
	assert.Contains(t, buf.String(), "stream moved")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Emit(t *testing.T) {
	text := func(w io.Writer) { fmt.Fprintln(w, "human output") }

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, f.Emit(map[string]int{"n": 1}, text))
		assert.Equal(t, "human output\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Emit(map[string]int{"n": 1}, text))
		assert.JSONEq(t, `{"status":"ok","data":{"n":1}}`, buf.String())
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("exporting %s", "telos.db")

			assert.Empty(t, out.String(), "diagnostics never go to the data stream")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "exporting telos.db")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestFail(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{errs.ErrNotFound, ExitCommandError},
		{errs.ErrInvalidObject, ExitCommandError},
		{errs.ErrInvalidName, ExitCommandError},
		{errs.ErrInvalidReference, ExitCommandError},
		{errs.ErrAmbiguous, ExitCommandError},
		{errs.ErrExists, ExitCommandError},
		{errs.ErrForbidden, ExitCommandError},
		{errs.ErrConflict, ExitFailure},
		{errs.ErrIntegrity, ExitFailure},
		{errs.ErrLockContention, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			err := fail("operation failed", errs.New(tt.kind, "test.op", "subject", "detail"))
			assert.Equal(t, tt.want, GetExitCode(err))
			assert.ErrorIs(t, err, tt.kind, "kind survives the exit wrapper")
		})
	}

	t.Run("plain error", func(t *testing.T) {
		err := fail("operation failed", errors.New("disk on fire"))
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}

func TestErrorCode(t *testing.T) {
	notFound := fail("cannot show", errs.New(errs.ErrNotFound, "odb.resolve", "abcd", "no object"))
	assert.Equal(t, "NOT_FOUND", errorCode(notFound))

	usage := NewExitError(ExitCommandError, "--file and --symbol are mutually exclusive")
	assert.Equal(t, "USAGE", errorCode(usage))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewSilentExitError(ExitFailure, "reported"))))
}
