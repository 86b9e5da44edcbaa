package messaging_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/messaging"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := messaging.NewLogSender(zerolog.New(&buf))

	require.NoError(t, s.Send(context.Background(), 42, "⏰ A vonat 5 perc késésben van."))
	assert.Contains(t, buf.String(), `"chat_id":42`)
	assert.Contains(t, buf.String(), "késésben")

	buf.Reset()
	s.ReportError(context.Background(), errors.New("vonatinfo down"))
	assert.Contains(t, buf.String(), "vonatinfo down")

	buf.Reset()
	s.ReportError(context.Background(), nil)
	assert.Empty(t, buf.String())
}
