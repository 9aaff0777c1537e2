package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEmailType_Valid(t *testing.T) {
	valid := []EmailType{
		TypeVerification, TypeBookingConfirmation, TypeBookingReminder,
		TypeEventReminder, TypePaymentReceipt, TypePaymentFailed,
		TypePartnerApproval, TypePartnerRejection, TypeAdminAlert,
		TypeContactForm, TypeWelcome, TypeNewsletter, TypePromotional,
		TypeOther,
	}
	for _, et := range valid {
		if !et.Valid() {
			t.Errorf("%s should be valid", et)
		}
	}

	for _, et := range []EmailType{"", "sms", "Booking_Confirmation"} {
		if et.Valid() {
			t.Errorf("%q should be invalid", et)
		}
	}
}

func TestPriority_Weight(t *testing.T) {
	tests := []struct {
		priority Priority
		weight   int
	}{
		{PriorityUrgent, 4},
		{PriorityHigh, 3},
		{PriorityNormal, 2},
		{PriorityLow, 1},
		{Priority("bogus"), 0},
	}
	for _, tc := range tests {
		if got := tc.priority.Weight(); got != tc.weight {
			t.Errorf("%s: expected weight %d, got %d", tc.priority, tc.weight, got)
		}
	}
}

func TestSortDue_PriorityThenScheduledAt(t *testing.T) {
	now := time.Now()
	early := now.Add(-2 * time.Hour)
	late := now.Add(-time.Minute)

	lowEarly := &Message{ID: uuid.New(), Priority: PriorityLow, ScheduledAt: early}
	normalLate := &Message{ID: uuid.New(), Priority: PriorityNormal, ScheduledAt: late}
	urgentLate := &Message{ID: uuid.New(), Priority: PriorityUrgent, ScheduledAt: late}
	urgentEarly := &Message{ID: uuid.New(), Priority: PriorityUrgent, ScheduledAt: early}
	highEarly := &Message{ID: uuid.New(), Priority: PriorityHigh, ScheduledAt: early}

	messages := []*Message{lowEarly, normalLate, urgentLate, urgentEarly, highEarly}
	SortDue(messages)

	want := []*Message{urgentEarly, urgentLate, highEarly, normalLate, lowEarly}
	for i, m := range want {
		if messages[i].ID != m.ID {
			t.Fatalf("position %d: expected %s/%v, got %s/%v",
				i, m.Priority, m.ScheduledAt, messages[i].Priority, messages[i].ScheduledAt)
		}
	}
}

func TestSortDue_StableForEqualKeys(t *testing.T) {
	at := time.Now()
	first := &Message{ID: uuid.New(), Priority: PriorityNormal, ScheduledAt: at}
	second := &Message{ID: uuid.New(), Priority: PriorityNormal, ScheduledAt: at}

	messages := []*Message{first, second}
	SortDue(messages)

	if messages[0].ID != first.ID || messages[1].ID != second.ID {
		t.Error("equal-key messages should keep their relative order")
	}
}
