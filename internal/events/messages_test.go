package events

import "testing"

func TestExpenseMessageJSON(t *testing.T) {
	msg := NewExpenseCreated("u1", "42", "12.50", "Food & Dining")
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := ExpenseMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Action != ActionCreated || got.UserID != "u1" || got.ExpenseID != "42" {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.Amount != "12.50" || got.Category != "Food & Dining" {
		t.Fatalf("payload fields lost: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("timestamp must survive the round trip")
	}
}

func TestDeletedMessageOmitsAmount(t *testing.T) {
	data, err := NewExpenseDeleted("u1", "42").ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) == "" {
		t.Fatal("empty payload")
	}
	got, err := ExpenseMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Action != ActionDeleted || got.Amount != "" {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestExpenseMessageFromJSONInvalid(t *testing.T) {
	if _, err := ExpenseMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
