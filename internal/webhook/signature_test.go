package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
)

func TestSignMatchesHMAC(t *testing.T) {
	body := []byte(`{"id":1,"name":"draft-report.pdf"}`)
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got := Sign("topsecret", body); got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
	if !Verify("topsecret", body, want) {
		t.Error("Verify rejected a valid signature")
	}
	if Verify("othersecret", body, want) {
		t.Error("Verify accepted the wrong secret")
	}
	if Verify("topsecret", []byte(`{"name":"draft-report.pdf","id":1}`), want) {
		t.Error("Verify accepted a different serialization")
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"sorts keys", `{"b":1,"a":{"d":2,"c":3}}`, `{"a":{"c":3,"d":2},"b":1}`},
		{"strips whitespace", "{ \"a\" : [1, 2,\n 3] }", `{"a":[1,2,3]}`},
		{"keeps number text", `{"n":12345678901234567890,"f":1.50}`, `{"f":1.50,"n":12345678901234567890}`},
		{"no html escaping", `{"html":"<b>&</b>"}`, `{"html":"<b>&</b>"}`},
		{"empty is null", ``, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(json.RawMessage(tt.in))
			if err != nil {
				t.Fatalf("Canonicalize: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := Canonicalize(json.RawMessage(`{"a":1} {"b":2}`)); err == nil {
		t.Error("expected error for trailing data")
	}
}
