package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct{ got []Alert }

func (r *recordingSink) Send(_ context.Context, a Alert) error {
	r.got = append(r.got, a)
	return nil
}

func TestPublisher_IsolatesFailingSinks(t *testing.T) {
	rec := &recordingSink{}
	p := NewPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)),
		SinkFunc(func(context.Context, Alert) error { return errors.New("down") }),
		SinkFunc(func(context.Context, Alert) error { panic("boom") }),
	)
	p.AddSink(rec)

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), Alert{Severity: SeverityCritical, Message: "parse failed"})
	})
	require.Len(t, rec.got, 1)
	assert.Equal(t, "parse failed", rec.got[0].Message)
}

func TestLogSink_LevelBySeverity(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, s.Send(context.Background(), Alert{Severity: SeverityCritical, Message: "m", Context: map[string]any{"stage": "planner"}}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "critical", line["severity"])
}

type fakeSNS struct {
	in  *sns.PublishInput
	err error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	return &sns.PublishOutput{}, f.err
}

func TestSNSSink_Send(t *testing.T) {
	client := &fakeSNS{}
	s := NewSNSSinkWithClient(client, "arn:aws:sns:eu-west-1:123:alerts")
	err := s.Send(context.Background(), Alert{Severity: SeverityWarning, Message: strings.Repeat("x", 200)})
	require.NoError(t, err)

	require.NotNil(t, client.in)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:alerts", *client.in.TopicArn)
	assert.LessOrEqual(t, len([]rune(*client.in.Subject)), 100)
	assert.Equal(t, "warning", *client.in.MessageAttributes["severity"].StringValue)

	var decoded Alert
	require.NoError(t, json.Unmarshal([]byte(*client.in.Message), &decoded))
	assert.Equal(t, SeverityWarning, decoded.Severity)
}

func TestSNSSink_WrapsError(t *testing.T) {
	s := NewSNSSinkWithClient(&fakeSNS{err: errors.New("throttled")}, "arn")
	err := s.Send(context.Background(), Alert{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sns publish")
}
