package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := New(ErrCategoryFormat, CodeBadMagic, "leading magic mismatch")
	assert.Equal(t, "[FORMAT:BAD_MAGIC] leading magic mismatch", err.Error())

	wrapped := Wrap(ErrCategoryStorage, CodeOpenFailed, "failed to open run.mcap",
		errors.New("permission denied"))
	assert.Equal(t, "[STORAGE:OPEN_FAILED] failed to open run.mcap: permission denied",
		wrapped.Error())
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("disk gone")
	err := Wrap(ErrCategoryStorage, CodeReadFailed, "read failed", cause)

	assert.ErrorIs(t, err, cause)
	// a further fmt wrap still resolves
	outer := fmt.Errorf("ingest: %w", err)
	var re *RoverlogError
	require.True(t, errors.As(outer, &re))
	assert.Equal(t, CodeReadFailed, re.Code)
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	a := NewRegistryError(CodeSchemaConflict, "schema id 3 redefined")
	b := NewRegistryError(CodeSchemaConflict, "different message")
	c := NewRegistryError(CodeChannelConflict, "channel id 3 redefined")

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestFatalityByCategory(t *testing.T) {
	assert.True(t, IsFatal(NewFormatError(CodeTruncatedRecord, "x")))
	assert.True(t, IsFatal(NewRegistryError(CodeSchemaConflict, "x")))
	assert.True(t, IsFatal(NewSourceError(CodeSizeLimitExceeded, "x")))
	assert.True(t, IsFatal(NewDecompressError(CodeDecompressFailed, "x", nil)))
	assert.True(t, IsFatal(NewStorageError(CodeOpenFailed, "x", nil)))

	// per-channel and caller-misuse errors never abort ingestion wholesale
	assert.False(t, IsFatal(NewPlanError(CodePlanFailed, "x", nil)))
	assert.False(t, IsFatal(NewUsageError(CodeNotInitialized, "x")))
	assert.False(t, IsFatal(NewInternalError("x", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestExtractors(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewPlanError(CodeUnsupportedEncoding, "no builder for cdr", nil))
	assert.Equal(t, ErrCategoryPlan, GetCategory(err))
	assert.Equal(t, CodeUnsupportedEncoding, GetCode(err))

	assert.Equal(t, ErrorCategory(""), GetCategory(errors.New("plain")))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestWithDetails(t *testing.T) {
	base := NewFormatError(CodeCRCMismatch, "chunk crc mismatch")
	detailed := base.WithDetails(map[string]interface{}{"expected": uint32(7), "actual": uint32(9)})

	assert.Nil(t, base.Details)
	assert.Equal(t, uint32(7), detailed.Details["expected"])
	assert.Equal(t, base.Code, detailed.Code)
}
