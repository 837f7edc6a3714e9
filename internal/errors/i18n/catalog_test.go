package i18n

import (
	"strings"
	"testing"
)

func TestGetCatalogFallsBackToEnUS(t *testing.T) {
	t.Parallel()

	for _, locale := range []string{"", "xx-YY", "pt-BR", "en", "en-GB"} {
		catalog := GetCatalog(locale)
		if catalog == nil {
			t.Fatalf("GetCatalog(%q) returned nil", locale)
		}
		if catalog.Locale() != "en-US" {
			t.Fatalf("GetCatalog(%q).Locale() = %q, want en-US", locale, catalog.Locale())
		}
	}
}

func TestFormatExpandsMetadata(t *testing.T) {
	t.Parallel()

	catalog := GetCatalog("en-US")
	msg := catalog.Format(CodeExchangeTooFewParticipants, map[string]string{
		"Minimum": "3",
		"Count":   "2",
	})
	if !strings.Contains(msg, "at least 3") || !strings.Contains(msg, "has 2") {
		t.Fatalf("unexpected formatted message: %q", msg)
	}
}

func TestFormatUnknownCodeUsesFallback(t *testing.T) {
	t.Parallel()

	catalog := GetCatalog("en-US")
	if msg := catalog.Format("NO_SUCH_CODE", nil); msg != fallbackMessage {
		t.Fatalf("unknown code message = %q, want fallback", msg)
	}
}

func TestInfeasibleMessageGuidesAdmins(t *testing.T) {
	t.Parallel()

	msg := GetCatalog("en-US").Format(CodeExchangeInfeasibleExclusions, nil)
	if !strings.Contains(strings.ToLower(msg), "loosen") {
		t.Fatalf("infeasible message should suggest loosening rules, got %q", msg)
	}
}
