package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello <no value>" {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}

func TestInsufficientBalanceMessage(t *testing.T) {
	got := GetCatalog("en-US").Format(CodeInsufficientBalance, map[string]string{
		"Required": "50",
		"Current":  "10",
		"Shortage": "40",
	})
	want := "Insufficient token balance: 50 required, 10 available (40 short)."
	if got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: "en-US"},
		{header: "pt-BR,pt;q=0.9", want: "pt-BR"},
		{header: "pt", want: "pt-BR"},
		{header: "en-GB,en;q=0.8", want: "en-US"},
		{header: "ja", want: "en-US"},
		{header: "!!invalid", want: "en-US"},
	}
	for _, tc := range tests {
		if got := Negotiate(tc.header); got != tc.want {
			t.Fatalf("Negotiate(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestEveryCodeHasPortugueseMessage(t *testing.T) {
	for code := range enUSMessages {
		if _, ok := ptBRMessages[code]; !ok {
			t.Fatalf("missing pt-BR message for %s", code)
		}
	}
}
