package services

import (
	"errors"
	"testing"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidator_LoadsAllSchemas(t *testing.T) {
	v := newTestValidator(t)

	for _, name := range []string{SchemaAccount, SchemaPurchase, SchemaPaymentCreate, SchemaPaymentConfirm, SchemaSettingsPatch, SchemaProductCreate, SchemaStockItems} {
		if _, ok := v.schemas[name]; !ok {
			t.Errorf("missing schema %q", name)
		}
	}
}

func TestValidate_Valid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		schema string
		body   string
	}{
		{SchemaAccount, `{"id":42,"language":"fa"}`},
		{SchemaPurchase, `{"account_id":42,"product_id":"6f1c2b9e-8a4d-4c1e-9b7a-2d3e4f5a6b7c"}`},
		{SchemaPaymentCreate, `{"account_id":42,"amount":"12.50"}`},
		{SchemaPaymentConfirm, `{"token":"a.b.c"}`},
		{SchemaSettingsPatch, `{"ton_fetch_limit":50,"ton_network_delay":15}`},
		{SchemaProductCreate, `{"name":"Netflix","name_fa":"نتفلیکس","price":"4.99"}`},
		{SchemaStockItems, `{"payloads":["user1:pass1","user2:pass2"]}`},
	}
	for _, tc := range cases {
		t.Run(tc.schema, func(t *testing.T) {
			if err := v.Validate(tc.schema, []byte(tc.body)); err != nil {
				t.Fatalf("expected valid body, got: %v", err)
			}
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		schema string
		body   string
	}{
		{"not json", SchemaPurchase, `{`},
		{"missing product", SchemaPurchase, `{"account_id":42}`},
		{"bad uuid", SchemaPurchase, `{"account_id":42,"product_id":"nope"}`},
		{"zero account", SchemaPurchase, `{"account_id":0,"product_id":"6f1c2b9e-8a4d-4c1e-9b7a-2d3e4f5a6b7c"}`},
		{"negative amount", SchemaPaymentCreate, `{"account_id":1,"amount":"-3"}`},
		{"numeric amount", SchemaPaymentCreate, `{"account_id":1,"amount":3}`},
		{"unknown language", SchemaAccount, `{"id":1,"language":"xx"}`},
		{"empty patch", SchemaSettingsPatch, `{}`},
		{"unknown setting", SchemaSettingsPatch, `{"extra_field":"boom"}`},
		{"fetch limit too high", SchemaSettingsPatch, `{"ton_fetch_limit":1000}`},
		{"product without name", SchemaProductCreate, `{"price":"1"}`},
		{"negative price", SchemaProductCreate, `{"name":"x","price":"-1"}`},
		{"no payloads", SchemaStockItems, `{"payloads":[]}`},
		{"empty payload", SchemaStockItems, `{"payloads":[""]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.schema, []byte(tc.body))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	err := v.Validate("nope", []byte(`{}`))
	if err == nil || errors.Is(err, ErrValidation) {
		t.Fatalf("expected a non-validation error, got: %v", err)
	}
}
