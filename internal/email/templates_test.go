package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_RejectionApproved(t *testing.T) {
	msg, err := Render("rejection.approved", "nurse@example.com", NotificationData{
		Name:      "Asha",
		BookingID: "b-1",
		Notes:     "covered by another nurse",
	})
	require.NoError(t, err)

	assert.Equal(t, "nurse@example.com", msg.To)
	assert.Equal(t, "Rejection request approved", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Asha,")
	assert.Contains(t, msg.Body, "booking b-1 was approved")
	assert.Contains(t, msg.Body, "Admin notes: covered by another nurse")
}

func TestRender_OmitsEmptyNotes(t *testing.T) {
	msg, err := Render("rejection.denied", "nurse@example.com", NotificationData{Name: "Asha", BookingID: "b-1"})
	require.NoError(t, err)
	assert.NotContains(t, msg.Body, "Admin notes")
}

func TestRender_UnknownEvent(t *testing.T) {
	_, err := Render("consent.accepted", "x@example.com", NotificationData{})
	assert.Error(t, err)
}
