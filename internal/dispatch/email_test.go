package dispatch

import (
	"context"
	"errors"
	"testing"

	"wellness-hub-go/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{}, nil
}

func TestEmailChannelSendsToUserAddress(t *testing.T) {
	api := &fakeSES{}
	ch := &EmailChannel{client: api, sender: "reminders@example.com"}

	target := Target{User: models.User{ID: 1, Email: "ana@example.com"}}
	err := ch.Send(context.Background(), target, Payload{Title: "Stretch break", Body: "Time to move"})
	require.NoError(t, err)

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Equal(t, []string{"ana@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Stretch break", *in.Message.Subject.Data)
	assert.Equal(t, "Time to move", *in.Message.Body.Text.Data)
	assert.Equal(t, "reminders@example.com", *in.Source)
}

func TestEmailChannelSkipsUsersWithoutAddress(t *testing.T) {
	api := &fakeSES{}
	ch := &EmailChannel{client: api, sender: "reminders@example.com"}

	err := ch.Send(context.Background(), Target{User: models.User{ID: 1}}, Payload{Title: "x"})
	assert.NoError(t, err)
	assert.Empty(t, api.inputs)
}

func TestEmailChannelWrapsProviderError(t *testing.T) {
	api := &fakeSES{err: errors.New("throttled")}
	ch := &EmailChannel{client: api, sender: "reminders@example.com"}

	err := ch.Send(context.Background(), Target{User: models.User{ID: 1, Email: "a@b.c"}}, Payload{Title: "x"})
	assert.ErrorContains(t, err, "email send failed")
}
