package domain

import "testing"

func TestConversationStatusValid(t *testing.T) {
	cases := []struct {
		status ConversationStatus
		want   bool
	}{
		{ConversationInProgress, true},
		{ConversationCompleted, true},
		{ConversationAbandoned, true},
		{ConversationStatus(""), false},
		{ConversationStatus("done"), false},
	}
	for _, tc := range cases {
		if got := tc.status.Valid(); got != tc.want {
			t.Errorf("Valid(%q)=%v want %v", tc.status, got, tc.want)
		}
	}
}

func TestConversationStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ConversationStatus
		want     bool
	}{
		{ConversationInProgress, ConversationCompleted, true},
		{ConversationInProgress, ConversationAbandoned, true},
		{ConversationInProgress, ConversationInProgress, false},
		{ConversationCompleted, ConversationAbandoned, false},
		{ConversationCompleted, ConversationInProgress, false},
		{ConversationAbandoned, ConversationCompleted, false},
		{ConversationAbandoned, ConversationInProgress, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%q -> %q)=%v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestConversationStatusTerminal(t *testing.T) {
	if ConversationInProgress.Terminal() {
		t.Errorf("in_progress must not be terminal")
	}
	if !ConversationCompleted.Terminal() || !ConversationAbandoned.Terminal() {
		t.Errorf("completed and abandoned must be terminal")
	}
}
