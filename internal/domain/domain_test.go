package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("%w: dial tcp: refused", ErrStoreUnavailable)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal kind, got %v", KindOf(err))
	}
	if KindOf(ErrRateLimited) != KindRateLimited {
		t.Fatalf("expected rate limited kind")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain errors are internal")
	}
}

func TestUserProviderColumns(t *testing.T) {
	u := &User{}
	for _, p := range []Provider{ProviderGitHub, ProviderGoogle, ProviderWeChat, ProviderAlipay, ProviderOIDC} {
		id := "ext-" + string(p)
		u.SetProvider(p, &id)
		if got := Deref(u.Provider(p)); got != id {
			t.Fatalf("%s: expected %q, got %q", p, id, got)
		}
		u.SetProvider(p, nil)
		if u.Provider(p) != nil {
			t.Fatalf("%s: expected cleared column", p)
		}
	}
}

func TestStrPtrBlank(t *testing.T) {
	if StrPtr("  ") != nil {
		t.Fatalf("blank input must stay nil")
	}
	if got := Deref(StrPtr(" alice ")); got != "alice" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}
