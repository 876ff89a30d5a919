package handlers

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PaymentEvent is the normalized view of a provider webhook payload.
// Providers disagree on where fields live, so each one is looked up in
// several places.
type PaymentEvent struct {
	Event    string
	EventID  string
	OrderID  string
	Test     bool
	Status   string
	Paid     bool
	Amount   float64
	Currency string
	Startapp string
	Plan     string
	ChatID   int64
}

var paidStatuses = map[string]bool{
	"succeeded": true,
	"success":   true,
	"paid":      true,
	"completed": true,
}

// ParsePaymentEvent extracts a PaymentEvent from a decoded JSON body
func ParsePaymentEvent(data map[string]interface{}) PaymentEvent {
	payment := object(data, "payment")
	invoice := object(data, "invoice")
	product := object(data, "product")
	buyer := object(data, "buyer")
	user := object(data, "user")

	ev := PaymentEvent{
		Event:    strings.ToLower(str(data["event"])),
		EventID:  first(str(data["id"]), str(data["event_id"]), str(payment["id"]), str(invoice["id"])),
		OrderID:  first(str(data["order_id"]), str(payment["order_id"]), str(invoice["order_id"])),
		Test:     truthy(data["test"]) || oneOf(str(data["mode"]), "test", "sandbox"),
		Status:   strings.ToLower(first(str(data["status"]), str(payment["status"]), str(invoice["status"]))),
		Currency: strings.ToUpper(first(str(data["currency"]), str(payment["currency"]), str(invoice["currency"]))),
		Startapp: strings.TrimSpace(first(str(data["startapp"]), str(product["startapp"]), str(product["code"]))),
		Plan:     strings.ToLower(first(str(data["plan"]), str(product["plan"]))),
	}
	ev.Paid = truthy(data["paid"]) || truthy(payment["paid"]) || paidStatuses[ev.Status]
	ev.Amount = number(firstValue(data["amount"], payment["amount"], invoice["amount"]))

	chat := first(
		str(data["telegram_user_id"]),
		str(data["from_id"]),
		str(buyer["telegram_id"]),
		str(user["id"]),
		str(payment["telegram_user_id"]),
	)
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		ev.ChatID = id
	}
	return ev
}

func object(data map[string]interface{}, key string) map[string]interface{} {
	if m, ok := data[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// str renders scalars as strings. Integral floats print without a fraction
// so large chat ids survive JSON number decoding.
func str(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func number(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func truthy(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return oneOf(strings.ToLower(str(v)), "1", "true", "yes", "y", "on")
}

func oneOf(s string, values ...string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstValue(values ...interface{}) interface{} {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
